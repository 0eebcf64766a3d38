package ledger

import (
	"fmt"
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/canonical"
)

// ComputeRecordHash returns the hash that seals a record:
// SHA-256(canonical(all fields except record_hash) ‖ previous_hash).
// The previous hash is both a canonicalized field and appended raw, so a
// record's hash binds its own content to its position in the chain.
func ComputeRecordHash(r *DecisionRecord) (string, error) {
	hashable := struct {
		DecisionRef        string            `json:"decision_ref"`
		ChainID            string            `json:"chain_id"`
		Sequence           uint64            `json:"sequence"`
		DecisionValue      string            `json:"decision_value"`
		Confidence         float64           `json:"confidence"`
		ModelID            string            `json:"model_id"`
		ModelVersion       string            `json:"model_version,omitempty"`
		Timestamp          time.Time         `json:"timestamp"`
		InputHash          string            `json:"input_hash"`
		OutputHash         string            `json:"output_hash"`
		DemographicContext map[string]string `json:"demographic_context,omitempty"`
		SupersedesRef      string            `json:"supersedes_ref,omitempty"`
		PreviousHash       string            `json:"previous_hash"`
	}{
		DecisionRef:        r.DecisionRef,
		ChainID:            r.ChainID,
		Sequence:           r.Sequence,
		DecisionValue:      r.DecisionValue,
		Confidence:         r.Confidence,
		ModelID:            r.ModelID,
		ModelVersion:       r.ModelVersion,
		Timestamp:          r.Timestamp,
		InputHash:          r.InputHash,
		OutputHash:         r.OutputHash,
		DemographicContext: r.DemographicContext,
		SupersedesRef:      r.SupersedesRef,
		PreviousHash:       r.PreviousHash,
	}

	canon, err := canonical.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("ledger: failed to canonicalize record: %w", err)
	}

	chained := make([]byte, 0, len(canon)+len(r.PreviousHash))
	chained = append(chained, canon...)
	chained = append(chained, []byte(r.PreviousHash)...)
	return canonical.HashBytes(chained), nil
}
