// Package evidence builds tamper-evident snapshots of evaluation runs.
//
// A Package is a content-addressed bundle: its hash is a pure function of
// the canonical payload, so semantically identical inputs always produce
// byte-identical bundles and equal hashes, regardless of map insertion
// order. Persistence is the caller's concern; packaging has no side
// effects.
package evidence

import (
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// LogEntry is one raw probe log line captured during an evaluation run.
type LogEntry struct {
	Sequence int    `json:"sequence"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

// Meta carries run measurements that belong in the evidence bundle but
// are not part of the scoring result.
type Meta struct {
	SampleSize int   `json:"sample_size"`
	LatencyMS  int64 `json:"latency_ms"`
}

// Payload is the hashed portion of a bundle.
type Payload struct {
	Result     *scoring.EvaluationResult `json:"result"`
	RawLogs    []LogEntry                `json:"raw_logs"`
	SampleSize int                       `json:"sample_size"`
	LatencyMS  int64                     `json:"latency_ms"`
}

// Package is the tamper-evident snapshot of one evaluation. Timestamp is
// taken from the result's EvaluatedAt so that packaging equal inputs
// yields equal packages, content hash included.
type Package struct {
	ContentHash string    `json:"content_hash"`
	Timestamp   time.Time `json:"timestamp"`
	SampleSize  int       `json:"sample_size"`
	LatencyMS   int64     `json:"latency_ms"`
	Payload     Payload   `json:"payload"`

	// Canonical holds the exact bytes the content hash covers, for
	// archiving and later re-verification.
	Canonical []byte `json:"-"`
}
