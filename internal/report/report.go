// Package report aggregates execution records into per-variant and
// per-scenario statistics, ranks variants against the run's objective and
// renders or persists the summary. Records are read, never mutated:
// summaries are regenerated, not patched.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/crucible-bench/crucible/internal/definition"
	"github.com/crucible-bench/crucible/internal/result"
)

// BaselineName designates the variant that improvement deltas are measured
// against, by convention.
const BaselineName = "baseline"

// VariantSummary is the computed aggregate for one variant across all
// providers, scenarios and iterations that ran it.
type VariantSummary struct {
	Name        string             `json:"name"`
	Tests       int                `json:"total_tests"`
	Successes   int                `json:"successes"`
	PassRate    float64            `json:"pass_rate"`
	AvgScore    float64            `json:"avg_score"`
	AvgElapsedS float64            `json:"avg_elapsed_s"`
	AvgMetrics  map[string]float64 `json:"avg_metrics,omitempty"`

	// Improvement is avg_score minus the baseline variant's avg_score.
	// Omitted, not zeroed, when no baseline variant ran.
	Improvement *float64 `json:"improvement,omitempty"`
}

// ScenarioSummary aggregates one scenario across every variant that ran it.
type ScenarioSummary struct {
	Name        string  `json:"name"`
	Tests       int     `json:"total_tests"`
	Successes   int     `json:"successes"`
	PassRate    float64 `json:"pass_rate"`
	AvgScore    float64 `json:"avg_score"`
	AvgElapsedS float64 `json:"avg_elapsed_s"`
}

// Summary is the persisted run summary artifact.
type Summary struct {
	TestName  string            `json:"test_name"`
	Objective string            `json:"objective"`
	Best      string            `json:"best_variant"`
	Variants  []VariantSummary  `json:"variants"`
	Scenarios []ScenarioSummary `json:"scenarios"`
}

type accum struct {
	count     int
	successes int
	score     float64
	elapsed   float64
	metrics   map[string]float64
}

func (a *accum) add(r *result.Record) {
	a.count++
	if r.Success {
		a.successes++
	}
	a.score += r.Score
	a.elapsed += r.ElapsedS
	for name, v := range r.Metrics {
		if a.metrics == nil {
			a.metrics = make(map[string]float64)
		}
		a.metrics[name] += float64(v)
	}
}

// Aggregate computes the full summary for one run. Variants and scenarios
// appear in first-seen record order, which follows definition order.
func Aggregate(testName, objective string, records []result.Record) *Summary {
	variantAcc := map[string]*accum{}
	scenarioAcc := map[string]*accum{}
	var variantOrder, scenarioOrder []string

	for i := range records {
		r := &records[i]
		if _, ok := variantAcc[r.Variant]; !ok {
			variantAcc[r.Variant] = &accum{}
			variantOrder = append(variantOrder, r.Variant)
		}
		variantAcc[r.Variant].add(r)
		if _, ok := scenarioAcc[r.Scenario]; !ok {
			scenarioAcc[r.Scenario] = &accum{}
			scenarioOrder = append(scenarioOrder, r.Scenario)
		}
		scenarioAcc[r.Scenario].add(r)
	}

	s := &Summary{TestName: testName, Objective: objective}
	for _, name := range variantOrder {
		a := variantAcc[name]
		n := float64(a.count)
		vs := VariantSummary{
			Name:        name,
			Tests:       a.count,
			Successes:   a.successes,
			PassRate:    float64(a.successes) / n,
			AvgScore:    a.score / n,
			AvgElapsedS: a.elapsed / n,
		}
		if a.metrics != nil {
			vs.AvgMetrics = make(map[string]float64, len(a.metrics))
			for metric, sum := range a.metrics {
				vs.AvgMetrics[metric] = sum / n
			}
		}
		s.Variants = append(s.Variants, vs)
	}
	for _, name := range scenarioOrder {
		a := scenarioAcc[name]
		n := float64(a.count)
		s.Scenarios = append(s.Scenarios, ScenarioSummary{
			Name:        name,
			Tests:       a.count,
			Successes:   a.successes,
			PassRate:    float64(a.successes) / n,
			AvgScore:    a.score / n,
			AvgElapsedS: a.elapsed / n,
		})
	}

	applyImprovements(s)
	s.Best = bestVariant(s.Variants, objective)
	return s
}

// applyImprovements fills avg-score deltas against the baseline variant.
// Without a baseline the figures stay omitted rather than defaulting to zero.
func applyImprovements(s *Summary) {
	var base *VariantSummary
	for i := range s.Variants {
		if s.Variants[i].Name == BaselineName {
			base = &s.Variants[i]
			break
		}
	}
	if base == nil {
		return
	}
	for i := range s.Variants {
		if s.Variants[i].Name == BaselineName {
			continue
		}
		delta := s.Variants[i].AvgScore - base.AvgScore
		s.Variants[i].Improvement = &delta
	}
}

// bestVariant ranks by the run objective: maximal pass rate for quality,
// minimal average token metric for cost, minimal average elapsed time for
// speed. Ties keep the earlier variant.
func bestVariant(variants []VariantSummary, objective string) string {
	if len(variants) == 0 {
		return ""
	}
	best := 0
	for i := 1; i < len(variants); i++ {
		switch objective {
		case definition.ObjectiveCost:
			if variants[i].AvgMetrics["tokens"] < variants[best].AvgMetrics["tokens"] {
				best = i
			}
		case definition.ObjectiveSpeed:
			if variants[i].AvgElapsedS < variants[best].AvgElapsedS {
				best = i
			}
		default:
			if variants[i].PassRate > variants[best].PassRate {
				best = i
			}
		}
	}
	return variants[best].Name
}

// Write persists the summary artifact next to the run's results.json.
func Write(runDir string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "summary.json"), data, 0o644)
}

// Render writes the summary in the requested format: table (default),
// markdown or json.
func Render(s *Summary, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return renderMarkdown(s, w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	default:
		renderTable(s, w)
		return nil
	}
}

func renderTable(s *Summary, w io.Writer) {
	fmt.Fprintf(w, "%s (objective: %s)\n", s.TestName, s.Objective)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	header := table.Row{"VARIANT", "TESTS", "PASS RATE", "AVG SCORE", "AVG TIME", "AVG TOKENS"}
	withImprovement := hasImprovements(s)
	if withImprovement {
		header = append(header, "VS BASELINE")
	}
	tw.AppendHeader(header)
	for _, v := range s.Variants {
		row := table.Row{
			v.Name,
			v.Tests,
			fmt.Sprintf("%.0f%%", v.PassRate*100),
			fmt.Sprintf("%.3f", v.AvgScore),
			fmt.Sprintf("%.1fs", v.AvgElapsedS),
			fmt.Sprintf("%.0f", v.AvgMetrics["tokens"]),
		}
		if withImprovement {
			row = append(row, formatImprovement(v.Improvement))
		}
		tw.AppendRow(row)
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()

	if s.Best != "" {
		fmt.Fprintf(w, "Best variant (%s): %s\n", s.Objective, s.Best)
	}
}

func renderMarkdown(s *Summary, w io.Writer) error {
	fmt.Fprintf(w, "# %s\n\n", s.TestName)
	fmt.Fprintf(w, "Objective: %s, best variant: %s\n\n", s.Objective, s.Best)

	fmt.Fprintln(w, "## Variants")
	fmt.Fprintln(w)
	withImprovement := hasImprovements(s)
	if withImprovement {
		fmt.Fprintln(w, "| Variant | Tests | Pass Rate | Avg Score | Avg Time | Avg Tokens | vs Baseline |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	} else {
		fmt.Fprintln(w, "| Variant | Tests | Pass Rate | Avg Score | Avg Time | Avg Tokens |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|")
	}
	for _, v := range s.Variants {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.3f | %.1fs | %.0f |",
			v.Name, v.Tests, v.PassRate*100, v.AvgScore, v.AvgElapsedS, v.AvgMetrics["tokens"])
		if withImprovement {
			fmt.Fprintf(w, " %s |", formatImprovement(v.Improvement))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "## Scenarios")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Scenario | Tests | Pass Rate | Avg Score | Avg Time |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for _, sc := range s.Scenarios {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.3f | %.1fs |\n",
			sc.Name, sc.Tests, sc.PassRate*100, sc.AvgScore, sc.AvgElapsedS)
	}
	return nil
}

func hasImprovements(s *Summary) bool {
	for _, v := range s.Variants {
		if v.Improvement != nil {
			return true
		}
	}
	return false
}

func formatImprovement(delta *float64) string {
	if delta == nil {
		return ""
	}
	return fmt.Sprintf("%+.3f", *delta)
}
