// Package extract pulls quantitative metrics and pass/fail criteria out of
// free-text subject output. Both passes are pattern tables, so new metrics
// and criteria are data, not code changes.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/crucible-bench/crucible/internal/definition"
)

// DefaultPatterns maps metric names to extraction patterns. The first capture
// group must be the numeric value. Test definitions may extend or override
// this table via metrics.patterns.
var DefaultPatterns = map[string]string{
	"tokens":     `(\d+)\s*tokens?`,
	"iterations": `iteration\s*(\d+)`,
}

// Patterns merges definition-supplied metric patterns over the built-ins.
func Patterns(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(DefaultPatterns)+len(extra))
	for name, p := range DefaultPatterns {
		merged[name] = p
	}
	for name, p := range extra {
		merged[name] = p
	}
	return merged
}

// Metrics applies each pattern to the output. The first match's captured
// group becomes the value; no match yields zero. Zero doubles as the
// "unknown" sentinel, so downstream averages treat absent metrics as zero.
func Metrics(output string, patterns map[string]string) map[string]int {
	metrics := make(map[string]int, len(patterns))
	for name, pattern := range patterns {
		metrics[name] = 0
		re, err := regexp.Compile(`(?i)` + pattern)
		if err != nil {
			log.WithError(err).Warnf("metric %q: bad pattern %q", name, pattern)
			continue
		}
		m := re.FindStringSubmatch(output)
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		metrics[name] = n
	}
	return metrics
}

// CriterionResult is the outcome of one criterion check, kept in the
// execution record for auditability.
type CriterionResult struct {
	Criterion   string `json:"criterion"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
}

// Evaluation is the result of checking one scenario's criteria against one
// captured output.
type Evaluation struct {
	Results []CriterionResult
	Passed  int
	Total   int
	AllMet  bool
	Score   float64
}

// Evaluate checks every criterion against the full output, case-insensitively
// and across lines. A malformed pattern is logged and counted as a non-match,
// never a fatal error. A scenario with zero criteria scores 0, not 1: the
// vacuous case must not inflate aggregate averages.
func Evaluate(output string, criteria []definition.Criterion) Evaluation {
	eval := Evaluation{Total: len(criteria)}
	for _, c := range criteria {
		passed := matchCriterion(output, c)
		eval.Results = append(eval.Results, CriterionResult{
			Criterion:   c.Criterion,
			Description: c.Description,
			Passed:      passed,
		})
		if passed {
			eval.Passed++
		}
	}
	if eval.Total > 0 {
		eval.AllMet = eval.Passed == eval.Total
		eval.Score = float64(eval.Passed) / float64(eval.Total)
	}
	return eval
}

func matchCriterion(output string, c definition.Criterion) bool {
	re, err := regexp.Compile(`(?is)` + c.Pattern)
	if err != nil {
		log.WithError(err).Warnf("criterion %q: bad pattern %q", c.Criterion, c.Pattern)
		return false
	}
	return re.MatchString(output)
}

// MissingKeywords returns the required keywords absent from the output,
// compared as case-insensitive substrings.
func MissingKeywords(output string, keywords []string) []string {
	lower := strings.ToLower(output)
	var missing []string
	for _, kw := range keywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}
	return missing
}
