package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/OpenTraceLab/jtagstream/pkg/hostlink"
	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
	"github.com/OpenTraceLab/jtagstream/pkg/phy"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
)

// escapeKey ends a terminal session (Ctrl-]).
const escapeKey = 0x1D

var detectFamily bool

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Interactive terminal over the stream link",
	Long: `Open a raw terminal on the stream link. Keystrokes are sent to the target
and whatever it sends is printed. Press Ctrl-] to quit.

With the simulator the PHY's system side echoes every byte. With --detect the
family is chosen from the IDCODE of the target.`,
	RunE: runTerm,
}

func init() {
	addAdapterFlags(termCmd)
	termCmd.Flags().BoolVar(&detectFamily, "detect", false, "pick the family from the target IDCODE")
	rootCmd.AddCommand(termCmd)
}

func runTerm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := func(ctx context.Context, a jtag.Adapter) error {
		family := cfg.Family
		if detectFamily {
			id, err := hostlink.ReadIDCode(a)
			if err != nil {
				return err
			}
			f, dev, err := vendor.FamilyForIDCode(id.Raw)
			if err != nil {
				return err
			}
			family = f
			fmt.Fprintf(os.Stderr, "detected %s (%s)\r\n", dev.Name, f)
		}
		lcfg, err := hostlink.ConfigFor(family, cfg.Chain, cfg.DataWidth)
		if err != nil {
			return err
		}
		link, err := hostlink.Dial(a, lcfg)
		if err != nil {
			return err
		}
		return terminal(ctx, link, os.Stdin, os.Stdout)
	}

	if simulated() {
		dev, err := phy.New(cfg)
		if err != nil {
			return err
		}
		return phy.RunConcurrent(ctx, dev, phy.Echo, time.Microsecond, func(ctx context.Context) error {
			return session(ctx, jtag.NewTargetAdapter(dev))
		})
	}
	a, release, err := openAdapter(nil)
	if err != nil {
		return err
	}
	defer release()
	return session(ctx, a)
}

// terminal pumps in to the link and the link to out until ctx ends, in
// reaches EOF or the escape key is read.
func terminal(ctx context.Context, link *hostlink.Link, in *os.File, out io.Writer) error {
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(fd, old)
	}
	fmt.Fprint(out, "connected, Ctrl-] to quit\r\n")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	keys := make(chan []byte)
	go func() {
		defer cancel()
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			for i := 0; i < n; i++ {
				if buf[i] == escapeKey {
					return
				}
			}
			if n > 0 {
				select {
				case keys <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// send what was typed before the session ended
			flushCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			if err := link.Flush(flushCtx); err != nil {
				log.Debug("flush on exit", "err", err)
			}
			return nil
		case b := <-keys:
			for _, c := range b {
				link.Queue(uint32(c))
			}
		default:
		}
		_, received, err := link.Exchange()
		if err != nil {
			return err
		}
		if received == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		for _, w := range link.Take(0) {
			if _, err := out.Write([]byte{byte(w)}); err != nil {
				return err
			}
		}
	}
}
