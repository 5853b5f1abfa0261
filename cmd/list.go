package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-bench/crucible/internal/definition"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <test-definition>",
		Short: "List the variants and scenarios a definition declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", def.TestName, def.Description)

			fmt.Println("\nVariants:")
			for i := range def.Variants {
				v := &def.Variants[i]
				line := fmt.Sprintf("  %s", v.Name)
				if v.Description != "" {
					line += fmt.Sprintf(" - %s", v.Description)
				}
				if v.Image != "" {
					line += fmt.Sprintf(" [image %s]", v.Image)
				}
				fmt.Println(line)
			}

			fmt.Println("\nScenarios:")
			for i := range def.Scenarios {
				s := &def.Scenarios[i]
				fmt.Printf("  %s (%d criteria, %d keywords)\n", s.Name, len(s.Criteria), len(s.Keywords))
			}
			return nil
		},
	}
}
