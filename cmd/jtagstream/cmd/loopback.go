package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/hostlink"
	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
	"github.com/OpenTraceLab/jtagstream/pkg/phy"
)

var (
	loopMessage    string
	loopFrames     int
	loopConcurrent bool
	loopSysHz      int
	loopTCKHz      int
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Echo a message through a simulated PHY",
	Long: `Build a simulated PHY whose system side returns every received word,
dial it with the host link, send --message and print what comes back along
with the link and PHY counters.

By default both clock domains are interleaved deterministically at the
--sys-hz:--tck-hz ratio. With --concurrent the system domain runs in its own
goroutine.`,
	RunE: runLoopback,
}

func init() {
	f := loopbackCmd.Flags()
	f.StringVarP(&loopMessage, "message", "m", "Hello, JTAG stream!", "message to send")
	f.IntVar(&loopFrames, "frames", hostlink.DefaultFramesPerScan, "frames per DR scan")
	f.BoolVar(&loopConcurrent, "concurrent", false, "clock the system domain from its own goroutine")
	f.IntVar(&loopSysHz, "sys-hz", 1, "system clock share of the frequency ratio")
	f.IntVar(&loopTCKHz, "tck-hz", 1, "TCK share of the frequency ratio")
	rootCmd.AddCommand(loopbackCmd)
}

func runLoopback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dev, err := phy.New(cfg)
	if err != nil {
		return err
	}
	lcfg, err := hostlink.ConfigFor(cfg.Family, cfg.Chain, cfg.DataWidth)
	if err != nil {
		return err
	}
	lcfg.FramesPerScan = loopFrames

	var echo []byte
	var stats hostlink.Stats
	session := func(ctx context.Context, a jtag.Adapter) error {
		link, err := hostlink.Dial(a, lcfg)
		if err != nil {
			return err
		}
		fmt.Printf("Target:   %s %s\n", link.IDCode(), link.Device().Name)
		msg := []byte(loopMessage)
		for sent := 0; sent < len(msg); {
			n, err := link.Write(msg[sent:])
			sent += n
			switch {
			case errors.Is(err, hostlink.ErrRXFull):
				// the echo came back faster than it was read
				for _, w := range link.Take(0) {
					echo = append(echo, byte(w))
				}
			case err != nil:
				return fmt.Errorf("send: %w", err)
			}
		}
		buf := make([]byte, len(loopMessage))
		for len(echo) < len(loopMessage) {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := link.Read(buf[:len(loopMessage)-len(echo)])
			if err != nil {
				return fmt.Errorf("receive: %w", err)
			}
			echo = append(echo, buf[:n]...)
		}
		stats = link.Stats()
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if loopConcurrent {
		err = phy.RunConcurrent(ctx, dev, phy.Echo, 0, func(ctx context.Context) error {
			return session(ctx, jtag.NewTargetAdapter(dev))
		})
	} else {
		var clocks *phy.Clocks
		if clocks, err = phy.NewClocks(dev, phy.Echo, loopSysHz, loopTCKHz); err != nil {
			return err
		}
		err = session(ctx, jtag.NewTargetAdapter(clocks))
	}
	if err != nil {
		return err
	}

	snap := dev.Snapshot()
	fmt.Printf("Sent:     %q\n", loopMessage)
	fmt.Printf("Received: %q\n", echo)
	fmt.Printf("Link:     scans=%d frames=%d sent=%d received=%d retried=%d\n",
		stats.Scans, stats.Frames, stats.Sent, stats.Received, stats.Retried)
	fmt.Printf("PHY:      frames=%d sent=%d received=%d rejected=%d aborted=%d\n",
		snap.Stats.Frames, snap.Stats.Sent, snap.Stats.Received, snap.Stats.Rejected, snap.Stats.Aborted)
	fmt.Printf("TAP:      %s (instruction %#x, user selected %v)\n",
		snap.TAP.Name(), snap.Instruction, snap.UserSelected)
	if string(echo) != loopMessage {
		return fmt.Errorf("loopback mismatch: sent %q, received %q", loopMessage, echo)
	}
	return nil
}
