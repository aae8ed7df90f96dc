package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagstream/pkg/tap"
)

var walkBits string

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the TAP controller state table",
	Long: `Print every TAP state with its successor for TMS=0 and TMS=1.

With --walk, start in Test-Logic-Reset and clock the given TMS bits (first
bit first), printing each state reached.`,
	RunE: runStates,
}

func init() {
	statesCmd.Flags().StringVar(&walkBits, "walk", "", "TMS bits to clock, e.g. 01100")
	rootCmd.AddCommand(statesCmd)
}

func runStates(cmd *cobra.Command, args []string) error {
	if walkBits != "" {
		return walk(walkBits)
	}
	fmt.Printf("%-16s %-10s %-16s %-16s\n", "STATE", "SVF", "TMS=0", "TMS=1")
	for s := tap.State(0); s < tap.NumStates; s++ {
		fmt.Printf("%-16s %-10s %-16s %-16s\n", s.Name(), s.SVFName(),
			tap.NextState(s, false).Name(), tap.NextState(s, true).Name())
	}
	return nil
}

func walk(bits string) error {
	tms := make([]bool, len(bits))
	for i, c := range bits {
		switch c {
		case '0':
		case '1':
			tms[i] = true
		default:
			return fmt.Errorf("--walk: %q is not a TMS bit", c)
		}
	}
	seq := tap.NewStateMachine().Walk(tms)
	fmt.Printf("      %s\n", seq.States[0].Name())
	for i, s := range seq.States[1:] {
		bit := 0
		if seq.TMS[i] {
			bit = 1
		}
		fmt.Printf("  %d -> %s\n", bit, s.Name())
	}
	return nil
}
