package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/phy"
)

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config [path]",
	Short: "Show or save the effective PHY configuration",
	Long: `Print the configuration the other commands would use after applying
--config and the global flags. With --save it is written as JSON to path, or
to the per-user configuration file when no path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the configuration to a file")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !saveConfig {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	} else if path, err = phy.DefaultConfigPath(); err != nil {
		return err
	}
	if err := phy.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Saved: %s\n", path)
	return nil
}
