package extract_test

import (
	"testing"

	"github.com/crucible-bench/crucible/internal/definition"
	"github.com/crucible-bench/crucible/internal/extract"
)

func TestMetrics(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   map[string]int
	}{
		{
			name:   "both present",
			output: "done after iteration 3, used 1542 tokens",
			want:   map[string]int{"tokens": 1542, "iterations": 3},
		},
		{
			name:   "singular token",
			output: "1 token consumed",
			want:   map[string]int{"tokens": 1, "iterations": 0},
		},
		{
			name:   "case insensitive",
			output: "Iteration 7 complete, 88 Tokens",
			want:   map[string]int{"tokens": 88, "iterations": 7},
		},
		{
			name:   "absent reads as zero",
			output: "nothing quantitative here",
			want:   map[string]int{"tokens": 0, "iterations": 0},
		},
		{
			name:   "first match wins",
			output: "10 tokens then 20 tokens",
			want:   map[string]int{"tokens": 10, "iterations": 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extract.Metrics(tc.output, extract.DefaultPatterns)
			for name, want := range tc.want {
				if got[name] != want {
					t.Errorf("metric %q: expected %d, got %d", name, want, got[name])
				}
			}
		})
	}
}

func TestMetricsBadPattern(t *testing.T) {
	patterns := map[string]string{
		"broken": `([unclosed`,
		"tokens": `(\d+)\s*tokens?`,
	}
	got := extract.Metrics("42 tokens", patterns)
	if got["broken"] != 0 {
		t.Errorf("broken pattern should read zero, got %d", got["broken"])
	}
	if got["tokens"] != 42 {
		t.Errorf("valid pattern should still extract, got %d", got["tokens"])
	}
}

func TestPatternsMerge(t *testing.T) {
	merged := extract.Patterns(map[string]string{
		"tokens": `cost=(\d+)`,
		"files":  `wrote (\d+) files`,
	})
	if merged["tokens"] != `cost=(\d+)` {
		t.Errorf("definition pattern should override default, got %q", merged["tokens"])
	}
	if merged["iterations"] == "" {
		t.Error("default iterations pattern should survive merge")
	}
	if merged["files"] == "" {
		t.Error("extra pattern should be present")
	}
}

func TestEvaluate(t *testing.T) {
	criteria := []definition.Criterion{
		{Criterion: "greets", Pattern: `hello|hi there`},
		{Criterion: "polite", Pattern: `please`},
	}

	eval := extract.Evaluate("Hello! How can I help? Please ask.", criteria)
	if !eval.AllMet {
		t.Error("expected all criteria met")
	}
	if eval.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", eval.Score)
	}

	eval = extract.Evaluate("Hello there.", criteria)
	if eval.AllMet {
		t.Error("expected a missed criterion")
	}
	if eval.Score != 0.5 {
		t.Errorf("expected score 0.5, got %f", eval.Score)
	}
	if len(eval.Results) != 2 || eval.Results[0].Passed == eval.Results[1].Passed {
		t.Errorf("expected one pass and one miss, got %+v", eval.Results)
	}
}

func TestEvaluateZeroCriteria(t *testing.T) {
	eval := extract.Evaluate("any output", nil)
	if eval.Score != 0 {
		t.Errorf("zero criteria should score 0, got %f", eval.Score)
	}
	if eval.AllMet {
		t.Error("zero criteria should not count as all met")
	}
}

func TestEvaluateAcrossLines(t *testing.T) {
	criteria := []definition.Criterion{
		{Criterion: "span", Pattern: `started.*finished`},
	}
	eval := extract.Evaluate("Started the task.\nSome work.\nFinished cleanly.", criteria)
	if eval.Passed != 1 {
		t.Error("pattern should match across lines, case-insensitively")
	}
}

func TestEvaluateBadPattern(t *testing.T) {
	criteria := []definition.Criterion{
		{Criterion: "broken", Pattern: `([unclosed`},
		{Criterion: "ok", Pattern: `fine`},
	}
	eval := extract.Evaluate("this is fine", criteria)
	if eval.Passed != 1 || eval.Results[0].Passed {
		t.Errorf("malformed pattern should count as a miss, got %+v", eval.Results)
	}
}

func TestMissingKeywords(t *testing.T) {
	missing := extract.MissingKeywords("Hello World", []string{"hello", "world", "goodbye"})
	if len(missing) != 1 || missing[0] != "goodbye" {
		t.Errorf("expected only 'goodbye' missing, got %v", missing)
	}
	if extract.MissingKeywords("anything", nil) != nil {
		t.Error("no keywords means nothing missing")
	}
}
