package evidence

import (
	"fmt"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/canonical"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/scoring"
)

// Build canonicalizes the evaluation's inputs and outputs into a
// content-addressed Package.
//
// Idempotent: equal inputs produce equal packages, including the hash.
// Values containing NaN or Infinity are rejected via the canonicalizer,
// as are non-UTF-8 log strings. No I/O.
func Build(result *scoring.EvaluationResult, rawLogs []LogEntry, meta Meta) (*Package, error) {
	if result == nil {
		return nil, fmt.Errorf("evidence: result is required")
	}

	if rawLogs == nil {
		rawLogs = []LogEntry{}
	}
	p := Payload{
		Result:     result,
		RawLogs:    rawLogs,
		SampleSize: meta.SampleSize,
		LatencyMS:  meta.LatencyMS,
	}

	canon, err := canonical.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("evidence: canonicalization failed: %w", err)
	}

	return &Package{
		ContentHash: canonical.HashBytes(canon),
		Timestamp:   result.EvaluatedAt,
		SampleSize:  meta.SampleSize,
		LatencyMS:   meta.LatencyMS,
		Payload:     p,
		Canonical:   canon,
	}, nil
}

// Verify recomputes the content hash from the package's payload and
// reports whether it matches the stored hash.
func Verify(pkg *Package) (bool, error) {
	if pkg == nil {
		return false, fmt.Errorf("evidence: package is required")
	}
	canon, err := canonical.Marshal(pkg.Payload)
	if err != nil {
		return false, fmt.Errorf("evidence: canonicalization failed: %w", err)
	}
	return canonical.HashBytes(canon) == pkg.ContentHash, nil
}
