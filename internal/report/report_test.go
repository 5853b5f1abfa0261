package report_test

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-bench/crucible/internal/definition"
	"github.com/crucible-bench/crucible/internal/report"
	"github.com/crucible-bench/crucible/internal/result"
)

func sampleRecords() []result.Record {
	return []result.Record{
		{Scenario: "greeting", Variant: "baseline", Provider: "openai", Iteration: 1,
			Success: true, Score: 1.0, ElapsedS: 2.0, Metrics: map[string]int{"tokens": 100}},
		{Scenario: "greeting", Variant: "baseline", Provider: "openai", Iteration: 2,
			Success: false, Score: 0.5, ElapsedS: 1.0, Metrics: map[string]int{"tokens": 140}},
		{Scenario: "refusal", Variant: "baseline", Provider: "openai", Iteration: 1,
			Success: false, Score: 0.0, ElapsedS: 3.0, Metrics: map[string]int{"tokens": 60}},
		{Scenario: "greeting", Variant: "tuned", Provider: "openai", Iteration: 1,
			Success: true, Score: 1.0, ElapsedS: 1.0, Metrics: map[string]int{"tokens": 50}},
		{Scenario: "greeting", Variant: "tuned", Provider: "openai", Iteration: 2,
			Success: true, Score: 1.0, ElapsedS: 2.0, Metrics: map[string]int{"tokens": 70}},
		{Scenario: "refusal", Variant: "tuned", Provider: "openai", Iteration: 1,
			Success: false, Score: 0.5, ElapsedS: 2.0, Metrics: map[string]int{"tokens": 90}},
	}
}

func TestAggregate(t *testing.T) {
	s := report.Aggregate("prompt_style", definition.ObjectiveQuality, sampleRecords())

	require.Len(t, s.Variants, 2)
	require.Len(t, s.Scenarios, 2)

	base := s.Variants[0]
	assert.Equal(t, "baseline", base.Name)
	assert.Equal(t, 3, base.Tests)
	assert.Equal(t, 1, base.Successes)
	assert.InDelta(t, 0.3333, base.PassRate, 0.001)
	assert.InDelta(t, 0.5, base.AvgScore, 0.001)
	assert.InDelta(t, 2.0, base.AvgElapsedS, 0.001)
	assert.InDelta(t, 100.0, base.AvgMetrics["tokens"], 0.001)
	assert.Nil(t, base.Improvement, "baseline never reports an improvement over itself")

	tuned := s.Variants[1]
	assert.Equal(t, "tuned", tuned.Name)
	assert.InDelta(t, 0.8333, tuned.AvgScore, 0.001)
	require.NotNil(t, tuned.Improvement)
	assert.InDelta(t, 0.3333, *tuned.Improvement, 0.001)

	assert.Equal(t, "greeting", s.Scenarios[0].Name)
	assert.Equal(t, 4, s.Scenarios[0].Tests)
	assert.Equal(t, "refusal", s.Scenarios[1].Name)

	assert.Equal(t, "tuned", s.Best)
}

func TestAggregateObjectives(t *testing.T) {
	records := sampleRecords()

	cost := report.Aggregate("t", definition.ObjectiveCost, records)
	assert.Equal(t, "tuned", cost.Best, "tuned averages fewer tokens")

	speed := report.Aggregate("t", definition.ObjectiveSpeed, records)
	assert.Equal(t, "tuned", speed.Best, "tuned averages less wall time")
}

func TestAggregateQualityTieKeepsEarlier(t *testing.T) {
	records := []result.Record{
		{Scenario: "s", Variant: "first", Success: true, Score: 1.0},
		{Scenario: "s", Variant: "second", Success: true, Score: 1.0},
	}
	s := report.Aggregate("t", definition.ObjectiveQuality, records)
	assert.Equal(t, "first", s.Best)
}

func TestAggregateWithoutBaseline(t *testing.T) {
	records := []result.Record{
		{Scenario: "s", Variant: "alpha", Success: true, Score: 1.0},
		{Scenario: "s", Variant: "beta", Success: false, Score: 0.0},
	}
	s := report.Aggregate("t", definition.ObjectiveQuality, records)
	for _, v := range s.Variants {
		assert.Nil(t, v.Improvement, "no baseline variant means no deltas at all")
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := report.Aggregate("t", definition.ObjectiveQuality, nil)
	assert.Empty(t, s.Variants)
	assert.Empty(t, s.Best)
}

func fixedSummary() *report.Summary {
	imp := 0.25
	return &report.Summary{
		TestName:  "prompt_style",
		Objective: "quality",
		Best:      "tuned",
		Variants: []report.VariantSummary{
			{Name: "baseline", Tests: 4, Successes: 2, PassRate: 0.5, AvgScore: 0.5,
				AvgElapsedS: 1.2, AvgMetrics: map[string]float64{"tokens": 120}},
			{Name: "tuned", Tests: 4, Successes: 3, PassRate: 0.75, AvgScore: 0.75,
				AvgElapsedS: 0.9, AvgMetrics: map[string]float64{"tokens": 98}, Improvement: &imp},
		},
		Scenarios: []report.ScenarioSummary{
			{Name: "greeting", Tests: 4, Successes: 3, PassRate: 0.75, AvgScore: 0.75, AvgElapsedS: 1.0},
			{Name: "refusal", Tests: 4, Successes: 2, PassRate: 0.5, AvgScore: 0.5, AvgElapsedS: 1.1},
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Render(fixedSummary(), "markdown", &buf))

	g := goldie.New(t)
	g.Assert(t, "markdown_summary", buf.Bytes())
}

func TestWriteReadRoundTrip(t *testing.T) {
	runDir := t.TempDir()
	s := report.Aggregate("prompt_style", definition.ObjectiveQuality, sampleRecords())
	require.NoError(t, report.Write(runDir, s))

	var buf bytes.Buffer
	require.NoError(t, report.Render(s, "json", &buf))
	assert.Contains(t, buf.String(), `"best_variant": "tuned"`)
}
