package result

import "github.com/crucible-bench/crucible/internal/extract"

// Error tags recorded on failed executions.
const (
	ErrTimeout       = "timeout"
	ErrLaunchFailure = "launch-failure"
	ErrCallFailure   = "call-failure"
	ErrCriterionMiss = "criterion-miss"
)

// OutputLimit bounds the output retained inside a record. Full output lives
// in the per-scenario log artifact.
const OutputLimit = 500

// Record is the immutable outcome of one (variant, scenario, iteration)
// execution. Records are append-only; the aggregator owns the sequence once
// the run completes.
type Record struct {
	Scenario  string                    `json:"scenario"`
	Variant   string                    `json:"variant"`
	Provider  string                    `json:"provider"`
	Iteration int                       `json:"iteration"`
	Success   bool                      `json:"success"`
	Passed    bool                      `json:"passed"`
	Score     float64                   `json:"score"`
	ElapsedS  float64                   `json:"elapsed_s"`
	Metrics   map[string]int            `json:"metrics,omitempty"`
	Criteria  []extract.CriterionResult `json:"criteria,omitempty"`
	Output    string                    `json:"output,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Truncate bounds captured output for record storage.
func Truncate(output string) string {
	if len(output) > OutputLimit {
		return output[:OutputLimit]
	}
	return output
}
