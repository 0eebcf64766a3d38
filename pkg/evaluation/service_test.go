package evaluation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/probe"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

func testEngineConfig() scoring.EngineConfig {
	return scoring.EngineConfig{
		EngineType:    "quality",
		SchemaVersion: "1.0.0",
		MetricWeights: []scoring.MetricWeight{
			{Key: "a", Weight: 0.3},
			{Key: "b", Weight: 0.25},
			{Key: "c", Weight: 0.2},
			{Key: "d", Weight: 0.15},
			{Key: "e", Weight: 0.1},
		},
		VerdictThresholds: []scoring.VerdictThreshold{
			{Label: scoring.VerdictPass, MinScore: 80},
			{Label: scoring.VerdictWarn, MinScore: 60},
			{Label: scoring.VerdictFail, MinScore: 0},
		},
		ComplianceThreshold: 80,
	}
}

func testMetrics() map[string]float64 {
	return map[string]float64{"a": 90, "b": 80, "c": 70, "d": 60, "e": 50}
}

func newTestService(t *testing.T) (*Service, *ledger.Ledger) {
	t.Helper()
	refs := 0
	led := ledger.New(ledger.NewMemoryStore()).
		WithClock(func() time.Time { return time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC) }).
		WithRefGenerator(func() string {
			refs++
			return fmt.Sprintf("dec-%04d", refs)
		})
	svc := New(map[string]scoring.EngineConfig{"quality": testEngineConfig()}, led).
		WithClock(func() time.Time { return time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC) })
	return svc, led
}

type fakeSource struct {
	resp      *probe.Response
	err       error
	called    bool
	gotReq    probe.Request
	onCollect func()
}

func (f *fakeSource) Collect(ctx context.Context, req probe.Request) (*probe.Response, error) {
	f.called = true
	f.gotReq = req
	if f.onCollect != nil {
		f.onCollect()
	}
	return f.resp, f.err
}

type fakeArchive struct {
	key  string
	data []byte
	err  error
}

func (a *fakeArchive) Put(ctx context.Context, contentHash string, data []byte) error {
	if a.err != nil {
		return a.err
	}
	a.key = contentHash
	a.data = append([]byte(nil), data...)
	return nil
}

func TestRun_RecordsDecision(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()

	out, err := svc.Run(ctx, RunRequest{
		ModelID:            "model-7",
		ModelVersion:       "2.1.0",
		EngineType:         "quality",
		RawMetrics:         testMetrics(),
		SampleSize:         120,
		DemographicContext: map[string]string{"region": "eu"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 75.0, out.Result.OverallScore, 1e-9)
	assert.Equal(t, scoring.VerdictWarn, out.Result.Verdict)
	assert.False(t, out.Result.Compliant)

	rec := out.Record
	assert.Equal(t, "model:model-7", rec.ChainID)
	assert.Equal(t, scoring.VerdictWarn, rec.DecisionValue)
	assert.InDelta(t, 0.75, rec.Confidence, 1e-9)
	assert.Equal(t, "2.1.0", rec.ModelVersion)
	assert.Equal(t, out.Evidence.ContentHash, rec.OutputHash)
	assert.Equal(t, out.Result.EvaluatedAt, rec.Timestamp)
	assert.Equal(t, 120, out.Evidence.SampleSize)

	stored, err := led.Get(ctx, rec.DecisionRef)
	require.NoError(t, err)
	assert.Equal(t, rec.RecordHash, stored.RecordHash)
}

func TestRun_InputHashIsDeterministic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := RunRequest{ModelID: "model-7", EngineType: "quality", RawMetrics: testMetrics()}
	first, err := svc.Run(ctx, req)
	require.NoError(t, err)
	second, err := svc.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Record.InputHash, second.Record.InputHash)
	assert.Equal(t, first.Evidence.ContentHash, second.Evidence.ContentHash)
	assert.NotEqual(t, first.Record.DecisionRef, second.Record.DecisionRef)
}

func TestRun_RejectsBeforeAnyWrite(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  RunRequest
	}{
		{"missing model", RunRequest{EngineType: "quality", RawMetrics: testMetrics()}},
		{"unknown engine", RunRequest{ModelID: "m", EngineType: "nope", RawMetrics: testMetrics()}},
		{"metric out of range", RunRequest{ModelID: "m", EngineType: "quality",
			RawMetrics: map[string]float64{"a": 101, "b": 80, "c": 70, "d": 60, "e": 50}}},
		{"missing metric", RunRequest{ModelID: "m", EngineType: "quality",
			RawMetrics: map[string]float64{"a": 90}}},
		{"no metrics and no source", RunRequest{ModelID: "m", EngineType: "quality"}},
		{"empty demographic value", RunRequest{ModelID: "m", EngineType: "quality",
			RawMetrics: testMetrics(), DemographicContext: map[string]string{"region": ""}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Run(ctx, tc.req)
			var vErr *scoring.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}

	head, err := led.Head(ctx, "model:m")
	require.NoError(t, err)
	assert.Zero(t, head.Version, "rejected runs must not touch the chain")
}

func TestRun_CollectsFromProbeSource(t *testing.T) {
	svc, _ := newTestService(t)
	source := &fakeSource{resp: &probe.Response{
		ModelVersion: "3.0.1",
		Metrics:      testMetrics(),
		SampleSize:   64,
		Logs:         []string{"probe started", "probe finished"},
	}}
	svc.WithMetricSource(source)

	out, err := svc.Run(context.Background(), RunRequest{ModelID: "model-7", EngineType: "quality"})
	require.NoError(t, err)

	require.True(t, source.called)
	assert.Equal(t, "model-7", source.gotReq.ModelID)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, source.gotReq.Metrics)

	assert.Equal(t, "3.0.1", out.Record.ModelVersion, "probe-reported version wins")
	assert.Equal(t, 64, out.Evidence.SampleSize)
	require.Len(t, out.Evidence.Payload.RawLogs, 2)
	assert.Equal(t, "probe started", out.Evidence.Payload.RawLogs[0].Message)
}

func TestRun_InlineMetricsSkipProbe(t *testing.T) {
	svc, _ := newTestService(t)
	source := &fakeSource{err: errors.New("must not be called")}
	svc.WithMetricSource(source)

	_, err := svc.Run(context.Background(), RunRequest{
		ModelID: "model-7", EngineType: "quality", RawMetrics: testMetrics(),
	})
	require.NoError(t, err)
	assert.False(t, source.called)
}

func TestRun_ProbeExhaustionRecordsErrorVerdict(t *testing.T) {
	svc, led := newTestService(t)
	source := &fakeSource{err: &probe.EndpointError{
		Endpoint: "https://probe.internal/v1",
		Attempts: 3,
		Err:      errors.New("endpoint returned 503"),
	}}
	svc.WithMetricSource(source)

	out, err := svc.Run(context.Background(), RunRequest{ModelID: "model-7", EngineType: "quality"})
	require.NoError(t, err, "an exhausted probe is an outcome, not a failure")

	assert.Equal(t, scoring.VerdictError, out.Result.Verdict)
	assert.False(t, out.Result.Compliant)
	assert.Zero(t, out.Record.Confidence)
	assert.Equal(t, scoring.VerdictError, out.Record.DecisionValue)

	logs := out.Evidence.Payload.RawLogs
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1]
	assert.Equal(t, "error", last.Level)
	assert.Contains(t, last.Message, "failed after 3 attempts")

	head, err := led.Head(context.Background(), "model:model-7")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Version, "the attempt must reach the audit trail")
}

func TestRun_ProbeHardFailurePropagates(t *testing.T) {
	svc, led := newTestService(t)
	source := &fakeSource{err: errors.New("tls handshake failed")}
	svc.WithMetricSource(source)

	_, err := svc.Run(context.Background(), RunRequest{ModelID: "model-7", EngineType: "quality"})
	require.Error(t, err)

	head, err := led.Head(context.Background(), "model:model-7")
	require.NoError(t, err)
	assert.Zero(t, head.Version)
}

func TestRun_CancellationLeavesNoLedgerTrace(t *testing.T) {
	svc, led := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{
		resp:      &probe.Response{Metrics: testMetrics(), SampleSize: 10},
		onCollect: cancel,
	}
	svc.WithMetricSource(source)

	_, err := svc.Run(ctx, RunRequest{ModelID: "model-7", EngineType: "quality"})
	assert.ErrorIs(t, err, context.Canceled)

	head, err := led.Head(context.Background(), "model:model-7")
	require.NoError(t, err)
	assert.Zero(t, head.Version, "cancellation before packaging must not write")
}

func TestRun_ArchivesCanonicalEvidence(t *testing.T) {
	svc, _ := newTestService(t)
	archive := &fakeArchive{}
	svc.WithArchiver(archive)

	out, err := svc.Run(context.Background(), RunRequest{
		ModelID: "model-7", EngineType: "quality", RawMetrics: testMetrics(),
	})
	require.NoError(t, err)

	assert.Equal(t, out.Evidence.ContentHash, archive.key)
	assert.Equal(t, out.Evidence.Canonical, archive.data)
}

func TestRun_ArchiveFailureDoesNotFailRun(t *testing.T) {
	svc, led := newTestService(t)
	svc.WithArchiver(&fakeArchive{err: errors.New("bucket unavailable")})

	out, err := svc.Run(context.Background(), RunRequest{
		ModelID: "model-7", EngineType: "quality", RawMetrics: testMetrics(),
	})
	require.NoError(t, err)

	stored, err := led.Get(context.Background(), out.Record.DecisionRef)
	require.NoError(t, err)
	assert.Equal(t, out.Record.RecordHash, stored.RecordHash)
}

type conflictStore struct {
	*ledger.MemoryStore
}

func (s *conflictStore) AppendCAS(ctx context.Context, head ledger.ChainHead, rec *ledger.DecisionRecord) error {
	return ledger.ErrHeadConflict
}

func TestRun_ContendedChainSurfaces(t *testing.T) {
	led := ledger.New(&conflictStore{ledger.NewMemoryStore()}).
		WithMaxAttempts(2).
		WithBackoff(ledger.BackoffPolicy{BaseMS: 1, MaxMS: 1, MaxJitterMS: 1})
	svc := New(map[string]scoring.EngineConfig{"quality": testEngineConfig()}, led)

	_, err := svc.Run(context.Background(), RunRequest{
		ModelID: "model-7", EngineType: "quality", RawMetrics: testMetrics(),
	})
	assert.ErrorIs(t, err, ledger.ErrChainContended)
}

func TestChainFor(t *testing.T) {
	assert.Equal(t, "model:m-1", ChainFor(RunRequest{ModelID: "m-1"}))
	assert.Equal(t, "global", ChainFor(RunRequest{ModelID: "m-1", ChainID: "global"}))
}
