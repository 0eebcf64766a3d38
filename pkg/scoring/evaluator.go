package scoring

import (
	"math"
	"time"
)

// MetricScore is one sub-metric's contribution to an evaluation.
type MetricScore struct {
	MetricKey string  `json:"metric_key"`
	RawValue  float64 `json:"raw_value"`
	Weight    float64 `json:"weight"`
}

// EvaluationResult is one scoring of one system. It is immutable once
// produced. EvaluatedAt is stamped by the orchestrator, not by Evaluate,
// which keeps evaluation itself a pure function.
type EvaluationResult struct {
	EngineType   string        `json:"engine_type"`
	OverallScore float64       `json:"overall_score"`
	Verdict      string        `json:"verdict"`
	Compliant    bool          `json:"compliant"`
	MetricScores []MetricScore `json:"metric_scores"`
	EvaluatedAt  time.Time     `json:"evaluated_at"`
}

// Evaluate combines raw probe metrics into an overall score and verdict
// under the given configuration.
//
// The overall score is the weighted sum of raw values, rounded to two
// decimal places (half away from zero). The verdict is the first
// configured threshold, scanning best-first, whose min_score the score
// meets or exceeds.
//
// Returns a *ValidationError when the config is malformed, a configured
// metric is missing from raw, or a raw value is NaN or outside [0,100].
// No I/O, no side effects: equal inputs always yield equal results.
func Evaluate(cfg *EngineConfig, raw map[string]float64) (*EvaluationResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scores := make([]MetricScore, 0, len(cfg.MetricWeights))
	weightedSum := 0.0
	for _, mw := range cfg.MetricWeights {
		v, ok := raw[mw.Key]
		if !ok {
			return nil, validationErrorf("raw_metrics", "missing configured metric %q", mw.Key)
		}
		if math.IsNaN(v) {
			return nil, validationErrorf("raw_metrics", "metric %q is NaN", mw.Key)
		}
		if v < 0 || v > 100 {
			return nil, validationErrorf("raw_metrics", "metric %q out of range [0,100]: %v", mw.Key, v)
		}
		weightedSum += mw.Weight * v
		scores = append(scores, MetricScore{MetricKey: mw.Key, RawValue: v, Weight: mw.Weight})
	}

	overall := roundScore(weightedSum)
	if overall < 0 {
		overall = 0
	} else if overall > 100 {
		overall = 100
	}

	verdict := cfg.VerdictThresholds[len(cfg.VerdictThresholds)-1].Label
	for _, vt := range cfg.VerdictThresholds {
		if overall >= vt.MinScore {
			verdict = vt.Label
			break
		}
	}

	return &EvaluationResult{
		EngineType:   cfg.EngineType,
		OverallScore: overall,
		Verdict:      verdict,
		Compliant:    overall >= cfg.ComplianceThreshold,
		MetricScores: scores,
	}, nil
}

// roundScore rounds to two decimal places, half away from zero. This is
// the fixed precision of every stored overall_score.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
