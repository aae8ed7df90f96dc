package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/phy"
	"github.com/OpenTraceLab/jtagstream/pkg/svf"
)

var svfCmd = &cobra.Command{
	Use:   "svf <file>",
	Short: "Play an SVF file",
	Long: `Play a Serial Vector Format file against the simulated PHY's TAP, or
against a real target with --adapter cmsis-dap. TDO mismatches stop playback
with the line number of the failing scan.`,
	Args: cobra.ExactArgs(1),
	RunE: runSVF,
}

func init() {
	addAdapterFlags(svfCmd)
	rootCmd.AddCommand(svfCmd)
}

func runSVF(cmd *cobra.Command, args []string) error {
	var dev *phy.Device
	if simulated() {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dev, err = phy.New(cfg); err != nil {
			return err
		}
	}
	a, release, err := openAdapter(dev)
	if err != nil {
		return err
	}
	defer release()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	player := svf.NewPlayer(a)
	if err := player.PlayFile(ctx, args[0]); err != nil {
		return err
	}
	st := player.Stats()
	fmt.Printf("SVF: %d commands, %d scans, %d checked, %d cycles\n", st.Commands, st.Scans, st.Checked, st.Cycles)
	fmt.Printf("TAP: %s\n", player.State().Name())
	return nil
}
