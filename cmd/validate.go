package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-bench/crucible/internal/definition"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <test-definition>",
		Short: "Check a test definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: OK\n", args[0])
			fmt.Printf("  test: %s\n", def.TestName)
			fmt.Printf("  variants: %d, scenarios: %d, providers: %d, iterations: %d\n",
				len(def.Variants), len(def.Scenarios), len(def.Providers), def.Iterations)
			fmt.Printf("  objective: %s\n", def.Metrics.Primary)
			return nil
		},
	}
}
