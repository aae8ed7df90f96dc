package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available JTAG interfaces",
	Long: `Scan the host for CMSIS-DAP probes and print a summary of the detected
transports. The simulator is always listed last.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Println("Detected JTAG interfaces:")
	for _, iface := range infos {
		if iface.Kind == jtag.InterfaceKindSim {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
			continue
		}
		fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
		if iface.Serial != "" {
			fmt.Printf(" serial %s", iface.Serial)
		}
		fmt.Println()
	}
	return nil
}
