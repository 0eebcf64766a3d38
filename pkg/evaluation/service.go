// Package evaluation orchestrates one compliance run end to end:
// collect raw metrics, score them, seal the evidence package, and
// append the decision to the model's chain.
//
// The ledger append is the last step, invoked only once the evidence
// package is finalized, so a cancelled or failed run leaves no partial
// ledger state.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/canonical"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evidence"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/probe"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// MetricSource supplies raw metric values when a request does not carry
// them inline. *probe.Client satisfies it.
type MetricSource interface {
	Collect(ctx context.Context, req probe.Request) (*probe.Response, error)
}

// Archiver persists canonical evidence bytes under their content hash.
type Archiver interface {
	Put(ctx context.Context, contentHash string, data []byte) error
}

// Service runs evaluations against a fixed set of engine configs.
type Service struct {
	configs map[string]scoring.EngineConfig
	ledger  *ledger.Ledger
	source  MetricSource
	archive Archiver
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates a service. The configs map is keyed by engine type and
// must hold validated configs.
func New(configs map[string]scoring.EngineConfig, led *ledger.Ledger) *Service {
	return &Service{
		configs: configs,
		ledger:  led,
		clock:   time.Now,
		logger:  slog.Default(),
	}
}

// WithMetricSource wires a probe client for requests without inline
// metrics.
func (s *Service) WithMetricSource(source MetricSource) *Service {
	s.source = source
	return s
}

// WithArchiver wires an evidence archive. Archive writes are best
// effort: the ledger record is already committed when they run.
func (s *Service) WithArchiver(archive Archiver) *Service {
	s.archive = archive
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Engines lists the configured engine types in stable order.
func (s *Service) Engines() []string {
	engines := make([]string, 0, len(s.configs))
	for engine := range s.configs {
		engines = append(engines, engine)
	}
	sort.Strings(engines)
	return engines
}

// ChainFor returns the chain a request's record lands on: the explicit
// chain_id, or the model's own chain.
func ChainFor(req RunRequest) string {
	if req.ChainID != "" {
		return req.ChainID
	}
	return "model:" + req.ModelID
}

// Run executes one evaluation. Requests rejected before scoring
// (unknown engine, malformed metrics) surface a *scoring.ValidationError
// and leave no ledger trace. A probe whose retry budget is exhausted is
// recorded with verdict ERROR and confidence 0 so the audit trail shows
// the attempt. A contended chain surfaces ledger.ErrChainContended; the
// caller may resubmit the whole run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.ModelID == "" {
		return nil, &scoring.ValidationError{Field: "model_id", Reason: "is required"}
	}
	cfg, ok := s.configs[req.EngineType]
	if !ok {
		return nil, &scoring.ValidationError{Field: "engine_type", Reason: fmt.Sprintf("unknown engine %q", req.EngineType)}
	}
	for k, v := range req.DemographicContext {
		if k == "" || v == "" {
			return nil, &scoring.ValidationError{Field: "demographic_context", Reason: "entries must have non-empty keys and values"}
		}
	}

	raw := req.RawMetrics
	logs := req.RawLogs
	sampleSize := req.SampleSize
	modelVersion := req.ModelVersion
	var latencyMS int64
	var probeErr *probe.EndpointError

	if raw == nil {
		if s.source == nil {
			return nil, &scoring.ValidationError{Field: "raw_metrics", Reason: "are required when no probe source is configured"}
		}
		start := time.Now()
		resp, err := s.source.Collect(ctx, probe.Request{
			ModelID:    req.ModelID,
			EngineType: req.EngineType,
			Metrics:    metricKeys(cfg),
		})
		latencyMS = time.Since(start).Milliseconds()
		switch {
		case err == nil:
			raw = resp.Metrics
			sampleSize = resp.SampleSize
			logs = append(logs, resp.Logs...)
			if resp.ModelVersion != "" {
				modelVersion = resp.ModelVersion
			}
		case errors.As(err, &probeErr):
			// Retry budget exhausted: the run is recorded as an ERROR
			// verdict, not dropped.
		default:
			return nil, err
		}
	}

	var result *scoring.EvaluationResult
	if probeErr != nil {
		result = &scoring.EvaluationResult{
			EngineType: cfg.EngineType,
			Verdict:    scoring.VerdictError,
			Compliant:  false,
		}
	} else {
		var err error
		result, err = scoring.Evaluate(cfg, raw)
		if err != nil {
			return nil, err
		}
	}
	result.EvaluatedAt = s.clock().UTC()

	// Nothing has been written yet; a cancelled run ends here with no
	// observable ledger effect.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := toLogEntries(logs)
	if probeErr != nil {
		entries = append(entries, evidence.LogEntry{
			Sequence: len(entries),
			Level:    "error",
			Message:  probeErr.Error(),
		})
	}
	pkg, err := evidence.Build(result, entries, evidence.Meta{
		SampleSize: sampleSize,
		LatencyMS:  latencyMS,
	})
	if err != nil {
		return nil, err
	}

	configHash, err := canonical.Hash(cfg)
	if err != nil {
		return nil, err
	}
	inputHash, err := canonical.Hash(struct {
		EngineType string             `json:"engine_type"`
		ModelID    string             `json:"model_id"`
		RawMetrics map[string]float64 `json:"raw_metrics"`
		ConfigHash string             `json:"config_hash"`
	}{cfg.EngineType, req.ModelID, raw, configHash})
	if err != nil {
		return nil, err
	}

	rec, err := s.ledger.Append(ctx, ChainFor(req), ledger.Draft{
		DecisionValue:      result.Verdict,
		Confidence:         confidenceFor(result),
		ModelID:            req.ModelID,
		ModelVersion:       modelVersion,
		Timestamp:          result.EvaluatedAt,
		InputHash:          inputHash,
		OutputHash:         pkg.ContentHash,
		DemographicContext: req.DemographicContext,
	})
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, pkg.ContentHash, pkg.Canonical); err != nil {
			s.logger.Warn("evidence archive write failed",
				"content_hash", pkg.ContentHash, "error", err)
		}
	}

	s.logger.Info("evaluation recorded",
		"model_id", req.ModelID, "engine_type", req.EngineType,
		"verdict", result.Verdict, "decision_ref", rec.DecisionRef,
		"chain_id", rec.ChainID)
	return &RunResult{Result: result, Evidence: pkg, Record: rec}, nil
}

func confidenceFor(result *scoring.EvaluationResult) float64 {
	if result.Verdict == scoring.VerdictError {
		return 0
	}
	c := result.OverallScore / 100
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func metricKeys(cfg scoring.EngineConfig) []string {
	keys := make([]string, len(cfg.MetricWeights))
	for i, mw := range cfg.MetricWeights {
		keys[i] = mw.Key
	}
	return keys
}

func toLogEntries(lines []string) []evidence.LogEntry {
	entries := make([]evidence.LogEntry, len(lines))
	for i, line := range lines {
		entries[i] = evidence.LogEntry{Sequence: i, Level: "info", Message: line}
	}
	return entries
}
