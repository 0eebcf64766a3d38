package evaluation

import (
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evidence"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// RunRequest triggers one evaluation of a model against one engine.
// RawMetrics supplies probe results inline; when absent, the service's
// metric source is called instead.
type RunRequest struct {
	ModelID            string             `json:"model_id"`
	ModelVersion       string             `json:"model_version,omitempty"`
	EngineType         string             `json:"engine_type"`
	ChainID            string             `json:"chain_id,omitempty"`
	RawMetrics         map[string]float64 `json:"raw_metrics,omitempty"`
	RawLogs            []string           `json:"raw_logs,omitempty"`
	SampleSize         int                `json:"sample_size,omitempty"`
	DemographicContext map[string]string  `json:"demographic_context,omitempty"`
}

// RunResult bundles everything one evaluation produced: the scored
// result, the evidence package whose content hash the record carries,
// and the committed ledger record.
type RunResult struct {
	Result   *scoring.EvaluationResult `json:"result"`
	Evidence *evidence.Package         `json:"evidence"`
	Record   *ledger.DecisionRecord    `json:"record"`
}
