package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/internal/logging"
	"github.com/OpenTraceLab/jtagstream/pkg/phy"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
)

var log = logging.For(logging.ComponentCLI)

var (
	// Global flags
	verbose    bool
	logFormat  string
	configPath string
	familyName string
	chain      int
	dataWidth  int
	depth      int
)

var rootCmd = &cobra.Command{
	Use:   "jtagstream",
	Short: "Byte stream over a JTAG user chain",
	Long: `jtagstream models a JTAG stream PHY: a framing engine behind an FPGA
boundary-scan user instruction, with clock-domain-crossing queues towards the
system side. It can also drive the host half of the link through a probe.

Examples:
  jtagstream states --walk 01100                 # Follow a TMS sequence
  jtagstream loopback --message "hello"          # Echo through a simulated PHY
  jtagstream loopback --family max10 -v          # Same, behind a MAX 10 primitive
  jtagstream term --adapter cmsis-dap            # Terminal over a real probe
  jtagstream svf idcode.svf                      # Play an SVF file on the simulator`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&configPath, "config", "", "PHY configuration file (JSON)")
	pf.StringVar(&familyName, "family", "sim", "FPGA family: sim, spartan6, series7, ultrascale, max10")
	pf.IntVar(&chain, "chain", 1, "user chain")
	pf.IntVar(&dataWidth, "data-width", 8, "payload bits per frame")
	pf.IntVar(&depth, "depth", 4, "entries per clock-domain-crossing queue")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logging.Configure(os.Stderr, logging.ParseFormat(logFormat))
	if verbose {
		logging.SetLevel(slog.LevelDebug)
	} else {
		logging.SetLevel(slog.LevelWarn)
	}
	return nil
}

// loadConfig reads --config when given and applies every flag the user set
// on top of it.
func loadConfig(cmd *cobra.Command) (phy.Config, error) {
	cfg := phy.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = phy.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("family") || configPath == "" {
		f, err := vendor.ParseFamily(familyName)
		if err != nil {
			return cfg, err
		}
		cfg.Family = f
	}
	if flags.Changed("chain") || configPath == "" {
		cfg.Chain = chain
	}
	if flags.Changed("data-width") || configPath == "" {
		cfg.DataWidth = dataWidth
	}
	if flags.Changed("depth") || configPath == "" {
		cfg.Depth = depth
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.Debug("configuration", "family", cfg.Family, "chain", cfg.Chain,
		"width", cfg.DataWidth, "depth", cfg.Depth, "stages", cfg.SyncStages)
	return cfg, nil
}
