//go:build property
// +build property

// Package scoring_test contains property-based tests for the evaluator.
package scoring_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// TestOverallScoreBounds verifies the score stays in [0,100] for any
// valid config and in-range raw metrics.
// Property: weights normalized to sum 1, raws in [0,100] → score in [0,100]
func TestOverallScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("overall score within [0,100]", prop.ForAll(
		func(rawWeights []float64, rawValues []float64) bool {
			n := len(rawWeights)
			if len(rawValues) < n {
				n = len(rawValues)
			}
			if n == 0 {
				return true // nothing to evaluate
			}

			total := 0.0
			for i := 0; i < n; i++ {
				total += rawWeights[i]
			}
			if total == 0 {
				return true
			}

			cfg := &scoring.EngineConfig{
				EngineType: "prop",
				VerdictThresholds: []scoring.VerdictThreshold{
					{Label: "PASS", MinScore: 80},
					{Label: "WARN", MinScore: 60},
					{Label: "FAIL", MinScore: 0},
				},
			}
			raw := make(map[string]float64, n)
			for i := 0; i < n; i++ {
				key := string(rune('a' + i%26))
				if i >= 26 {
					key = key + string(rune('0'+i/26))
				}
				cfg.MetricWeights = append(cfg.MetricWeights, scoring.MetricWeight{
					Key:    key,
					Weight: rawWeights[i] / total,
				})
				raw[key] = rawValues[i]
			}

			res, err := scoring.Evaluate(cfg, raw)
			if err != nil {
				// Degenerate normalization (e.g. a zero weight) is a
				// config rejection, not a bounds violation.
				return true
			}

			return res.OverallScore >= 0 && res.OverallScore <= 100
		},
		gen.SliceOfN(8, gen.Float64Range(0.01, 10)),
		gen.SliceOfN(8, gen.Float64Range(0, 100)),
	))

	properties.Property("verdict is always a configured label", prop.ForAll(
		func(values []float64) bool {
			if len(values) == 0 {
				return true
			}
			n := len(values)
			cfg := &scoring.EngineConfig{
				EngineType: "prop",
				VerdictThresholds: []scoring.VerdictThreshold{
					{Label: "PASS", MinScore: 80},
					{Label: "WARN", MinScore: 60},
					{Label: "FAIL", MinScore: 0},
				},
			}
			raw := make(map[string]float64, n)
			for i := 0; i < n; i++ {
				key := string(rune('a' + i%26))
				if i >= 26 {
					key = key + string(rune('0'+i/26))
				}
				cfg.MetricWeights = append(cfg.MetricWeights, scoring.MetricWeight{
					Key:    key,
					Weight: 1.0 / float64(n),
				})
				raw[key] = values[i]
			}

			res, err := scoring.Evaluate(cfg, raw)
			if err != nil {
				return true
			}
			switch res.Verdict {
			case "PASS", "WARN", "FAIL":
				return true
			}
			return false
		},
		gen.SliceOfN(5, gen.Float64Range(0, 100)),
	))

	properties.TestingRun(t)
}
