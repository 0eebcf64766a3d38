// Package scoring turns per-engine raw probe metrics into weighted
// compliance scores and categorical verdicts.
//
// Scoring configuration is data, not code: an EngineConfig is validated
// once when loaded and rejected outright if its invariants do not hold.
// Evaluation itself is a pure function, so any stored result can be
// re-verified later from its raw metrics.
package scoring

import "math"

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-6

// VerdictError is the reserved verdict recorded when an evaluation run
// fails (probe exhaustion). It may not appear in configured thresholds.
const VerdictError = "ERROR"

// Default verdict labels used by the built-in engine configurations.
const (
	VerdictPass = "PASS"
	VerdictWarn = "WARN"
	VerdictFail = "FAIL"
)

// MetricWeight assigns a relative weight to one sub-metric.
type MetricWeight struct {
	Key    string  `json:"key" yaml:"key"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// VerdictThreshold maps a minimum score to a verdict label. Thresholds
// are ordered best-first; the final one must be a catch-all at 0.
type VerdictThreshold struct {
	Label    string  `json:"label" yaml:"label"`
	MinScore float64 `json:"min_score" yaml:"min_score"`
}

// EngineConfig is the scoring configuration for one evaluation domain.
type EngineConfig struct {
	EngineType          string             `json:"engine_type" yaml:"engine_type"`
	SchemaVersion       string             `json:"schema_version" yaml:"schema_version"`
	MetricWeights       []MetricWeight     `json:"metric_weights" yaml:"metric_weights"`
	VerdictThresholds   []VerdictThreshold `json:"verdict_thresholds" yaml:"verdict_thresholds"`
	ComplianceThreshold float64            `json:"compliance_threshold" yaml:"compliance_threshold"`
}

// Validate checks the structural invariants:
// weights positive, unique keys, summing to 1.0 within WeightTolerance;
// thresholds strictly descending with unique labels and a catch-all at 0.
func (c *EngineConfig) Validate() error {
	if c.EngineType == "" {
		return validationErrorf("engine_type", "must not be empty")
	}

	if len(c.MetricWeights) == 0 {
		return validationErrorf("metric_weights", "at least one metric is required")
	}
	seen := make(map[string]bool, len(c.MetricWeights))
	sum := 0.0
	for i, mw := range c.MetricWeights {
		if mw.Key == "" {
			return validationErrorf("metric_weights", "entry %d has an empty key", i)
		}
		if seen[mw.Key] {
			return validationErrorf("metric_weights", "duplicate metric key %q", mw.Key)
		}
		seen[mw.Key] = true
		if math.IsNaN(mw.Weight) || math.IsInf(mw.Weight, 0) {
			return validationErrorf("metric_weights", "weight for %q is not finite", mw.Key)
		}
		if mw.Weight <= 0 {
			return validationErrorf("metric_weights", "weight for %q must be positive, got %v", mw.Key, mw.Weight)
		}
		sum += mw.Weight
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return validationErrorf("metric_weights", "weights must sum to 1.0 within tolerance, got %.9f", sum)
	}

	if len(c.VerdictThresholds) == 0 {
		return validationErrorf("verdict_thresholds", "at least one threshold is required")
	}
	labels := make(map[string]bool, len(c.VerdictThresholds))
	for i, vt := range c.VerdictThresholds {
		if vt.Label == "" {
			return validationErrorf("verdict_thresholds", "entry %d has an empty label", i)
		}
		if vt.Label == VerdictError {
			return validationErrorf("verdict_thresholds", "%q is reserved for failed runs", VerdictError)
		}
		if labels[vt.Label] {
			return validationErrorf("verdict_thresholds", "duplicate label %q", vt.Label)
		}
		labels[vt.Label] = true
		if math.IsNaN(vt.MinScore) || vt.MinScore < 0 || vt.MinScore > 100 {
			return validationErrorf("verdict_thresholds", "min_score for %q must be in [0,100]", vt.Label)
		}
		if i > 0 && vt.MinScore >= c.VerdictThresholds[i-1].MinScore {
			return validationErrorf("verdict_thresholds", "thresholds must be strictly descending by min_score")
		}
	}
	if last := c.VerdictThresholds[len(c.VerdictThresholds)-1]; last.MinScore != 0 {
		return validationErrorf("verdict_thresholds", "final threshold %q must be a catch-all with min_score 0", last.Label)
	}

	if math.IsNaN(c.ComplianceThreshold) || c.ComplianceThreshold < 0 || c.ComplianceThreshold > 100 {
		return validationErrorf("compliance_threshold", "must be in [0,100]")
	}
	return nil
}
