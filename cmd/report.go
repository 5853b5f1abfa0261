package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crucible-bench/crucible/internal/report"
	"github.com/crucible-bench/crucible/internal/result"
)

func newReportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report <run-dir>",
		Short: "Re-render the summary of a completed run",
		Long: "Rebuilds the summary from a run directory's results.json and prints it.\n" +
			"Point it at a specific run_* directory or at a test's `latest` symlink.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir, err := filepath.EvalSymlinks(args[0])
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}

			records, err := result.ReadRecords(runDir)
			if err != nil {
				return err
			}
			prior, err := readSummary(runDir)
			if err != nil {
				return err
			}

			summary := report.Aggregate(prior.TestName, prior.Objective, records)
			return report.Render(summary, format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, markdown or json")
	return cmd
}

// readSummary recovers the run's identity from its persisted summary. Records
// carry no test name or objective of their own.
func readSummary(runDir string) (*report.Summary, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s report.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	return &s, nil
}
