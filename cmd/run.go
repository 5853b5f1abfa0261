package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crucible-bench/crucible/internal/definition"
	"github.com/crucible-bench/crucible/internal/extract"
	"github.com/crucible-bench/crucible/internal/report"
	"github.com/crucible-bench/crucible/internal/result"
	"github.com/crucible-bench/crucible/internal/runner"
)

const (
	defaultResultsDir    = "results"
	defaultCallTimeout   = 60
	defaultStartupGrace  = 3
	defaultShutdownGrace = 5
)

var flagParallel int

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <test-definition>",
		Short: "Execute a benchmark run",
		Args:  cobra.ExactArgs(1),
		RunE:  runBenchmark,
	}
	cmd.Flags().String("subject-bin", "", "subject binary to benchmark (env CRUCIBLE_SUBJECT_BIN)")
	cmd.Flags().String("results-dir", "", "base directory for run artifacts (env CRUCIBLE_RESULTS_DIR)")
	cmd.Flags().Int("call-timeout", 0, "per-scenario timeout in seconds (env CRUCIBLE_CALL_TIMEOUT)")
	cmd.Flags().Int("startup-grace", 0, "subject startup grace in seconds (env CRUCIBLE_STARTUP_GRACE)")
	cmd.Flags().Int("shutdown-grace", 0, "subject shutdown grace in seconds (env CRUCIBLE_SHUTDOWN_GRACE)")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1,
		"max concurrent variant/provider pairs; variants must bind distinct subject ports")
	viper.BindPFlag("subject_bin", cmd.Flags().Lookup("subject-bin"))
	viper.BindPFlag("results_dir", cmd.Flags().Lookup("results-dir"))
	viper.BindPFlag("call_timeout", cmd.Flags().Lookup("call-timeout"))
	viper.BindPFlag("startup_grace", cmd.Flags().Lookup("startup-grace"))
	viper.BindPFlag("shutdown_grace", cmd.Flags().Lookup("shutdown-grace"))
	return cmd
}

// resolveString applies the settings precedence: flag/env via viper, then the
// definition's harness section, then the built-in default.
func resolveString(key, fromDef, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	if fromDef != "" {
		return fromDef
	}
	return fallback
}

func resolveSeconds(key string, fromDef, fallback int) time.Duration {
	v := viper.GetInt(key)
	if v <= 0 {
		v = fromDef
	}
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	def, err := definition.Load(args[0])
	if err != nil {
		return err
	}

	subjectBin := resolveString("subject_bin", def.Harness.SubjectBin, "")
	if subjectBin == "" {
		return fmt.Errorf("subject binary not configured (use --subject-bin, CRUCIBLE_SUBJECT_BIN or harness.subject_bin)")
	}
	resultsDir := resolveString("results_dir", def.Harness.ResultsDir, defaultResultsDir)

	runDir, err := result.CreateRunDir(resultsDir, def.TestName)
	if err != nil {
		return err
	}
	fmt.Printf("Test: %s\n", def.TestName)
	fmt.Printf("  %s\n", def.Description)
	fmt.Printf("Run directory: %s\n", runDir)

	ctx := context.Background()
	patterns := extract.Patterns(def.Metrics.Patterns)

	type pair struct {
		variant  *definition.Variant
		provider string
	}
	var pairs []pair
	for i := range def.Variants {
		for _, provider := range def.Providers {
			pairs = append(pairs, pair{variant: &def.Variants[i], provider: provider})
		}
	}

	makeOpts := func(p pair) *runner.VariantOpts {
		return &runner.VariantOpts{
			Variant:       p.variant,
			Provider:      p.provider,
			Scenarios:     def.Scenarios,
			Iterations:    def.Iterations,
			RunDir:        runDir,
			SubjectBin:    subjectBin,
			StartupGrace:  resolveSeconds("startup_grace", def.Harness.StartupGraceSeconds, defaultStartupGrace),
			ShutdownGrace: resolveSeconds("shutdown_grace", def.Harness.ShutdownGraceSeconds, defaultShutdownGrace),
			CallTimeout:   resolveSeconds("call_timeout", def.Harness.CallTimeoutSeconds, defaultCallTimeout),
			Patterns:      patterns,
			Progress:      printProgress,
		}
	}

	var records []result.Record
	if flagParallel > 1 {
		jobs := make([]runner.Job, len(pairs))
		for i, p := range pairs {
			p := p
			jobs[i] = func() ([]result.Record, error) {
				return runner.RunVariant(ctx, makeOpts(p))
			}
		}
		batches, errs := runner.RunPool(flagParallel, jobs)
		for i := range batches {
			if errs[i] != nil {
				fmt.Printf("SKIP %s/%s: %v\n", pairs[i].variant.Name, pairs[i].provider, errs[i])
				continue
			}
			records = append(records, batches[i]...)
		}
	} else {
		for _, p := range pairs {
			fmt.Printf("\nVariant %s (provider %s)\n", p.variant.Name, p.provider)
			if p.variant.Description != "" {
				fmt.Printf("  %s\n", p.variant.Description)
			}
			recs, err := runner.RunVariant(ctx, makeOpts(p))
			if err != nil {
				fmt.Printf("  SKIP: %v\n", err)
				continue
			}
			records = append(records, recs...)
		}
	}

	if err := result.WriteRecords(runDir, records); err != nil {
		return err
	}
	summary := report.Aggregate(def.TestName, def.Metrics.Primary, records)
	if err := report.Write(runDir, summary); err != nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	if err := report.Render(summary, "table", os.Stdout); err != nil {
		return err
	}
	fmt.Printf("\nResults saved: %s\n", runDir)
	return nil
}

func printProgress(rec *result.Record) {
	status := "ok  "
	if !rec.Success {
		status = "FAIL"
	}
	detail := fmt.Sprintf("%.1fs", rec.ElapsedS)
	if rec.Error != "" {
		detail = fmt.Sprintf("%s, %.1fs", rec.Error, rec.ElapsedS)
	}
	fmt.Printf("  %s %s [%d] (%s)\n", status, rec.Scenario, rec.Iteration, detail)
}
