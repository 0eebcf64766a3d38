// Package ledger implements the append-only, hash-chained decision store.
//
// Every verdict the platform produces becomes a DecisionRecord whose hash
// covers its own fields and the previous record's hash, so retroactive
// edits are detectable. Records are never mutated or deleted; a status
// change is a new record superseding the old one. Writers to the same
// chain contend on a versioned ChainHead via compare-and-swap, never a
// held lock, so reads are never blocked.
package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// GenesisHash is the well-known previous_hash of the first record in any
// chain. Only sequence 1 may reference it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DecisionRecord is one immutable ledger entry.
type DecisionRecord struct {
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
	RecordHash         string            `json:"record_hash"`
}

// Draft holds the caller-supplied fields of a record to append. The
// ledger assigns decision_ref (when empty), chain position, and hashes.
type Draft struct {
	DecisionRef        string
	DecisionValue      string
	Confidence         float64
	ModelID            string
	ModelVersion       string
	Timestamp          time.Time
	InputHash          string
	OutputHash         string
	DemographicContext map[string]string
	SupersedesRef      string
}

// Validate rejects drafts that could never form a hash-valid record.
func (d *Draft) Validate() error {
	if d.DecisionValue == "" {
		return fmt.Errorf("ledger: draft decision_value is required")
	}
	if d.ModelID == "" {
		return fmt.Errorf("ledger: draft model_id is required")
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("ledger: draft confidence must be in [0,1], got %v", d.Confidence)
	}
	if err := validHashRef("input_hash", d.InputHash); err != nil {
		return err
	}
	if err := validHashRef("output_hash", d.OutputHash); err != nil {
		return err
	}
	for k, v := range d.DemographicContext {
		if k == "" || v == "" {
			return fmt.Errorf("ledger: draft demographic_context entries must be non-empty")
		}
	}
	return nil
}

func validHashRef(field, h string) error {
	if h == "" {
		return fmt.Errorf("ledger: draft %s is required", field)
	}
	if !strings.HasPrefix(h, "sha256:") || len(h) != len("sha256:")+64 {
		return fmt.Errorf("ledger: draft %s must be a sha256 content hash", field)
	}
	return nil
}

// ChainHead points at the latest record of one logical chain. Version
// increments on every successful append; exactly one writer succeeds per
// version.
type ChainHead struct {
	ChainID  string `json:"chain_id"`
	HeadHash string `json:"head_hash"`
	Version  uint64 `json:"version"`
}

// QueryFilter selects records for read-only queries. Zero values mean
// "no constraint".
type QueryFilter struct {
	ChainID       string
	DecisionRef   string
	ModelID       string
	SupersedesRef string
	Since         *time.Time
	Until         *time.Time
	FromSeq       uint64
	ToSeq         uint64
	MaxResults    int
}

// Matches reports whether r satisfies every set constraint.
func (f QueryFilter) Matches(r *DecisionRecord) bool {
	if f.ChainID != "" && r.ChainID != f.ChainID {
		return false
	}
	if f.DecisionRef != "" && r.DecisionRef != f.DecisionRef {
		return false
	}
	if f.ModelID != "" && r.ModelID != f.ModelID {
		return false
	}
	if f.SupersedesRef != "" && r.SupersedesRef != f.SupersedesRef {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	if f.FromSeq > 0 && r.Sequence < f.FromSeq {
		return false
	}
	if f.ToSeq > 0 && r.Sequence > f.ToSeq {
		return false
	}
	return true
}

// VerificationReport is the outcome of a chain verification scan.
// Integrity failure is a result, not a transport error: Valid is false
// and FirstBrokenRef names the earliest record that failed.
type VerificationReport struct {
	ChainID        string `json:"chain_id"`
	Valid          bool   `json:"valid"`
	FirstBrokenRef string `json:"first_broken_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RecordsChecked int    `json:"records_checked"`
	FromSeq        uint64 `json:"from_seq"`
	ToSeq          uint64 `json:"to_seq"`
}

// Err converts an invalid report into an *IntegrityError, for callers
// that want error semantics (CLI exit codes). Valid reports return nil.
func (r *VerificationReport) Err() error {
	if r.Valid {
		return nil
	}
	return &IntegrityError{ChainID: r.ChainID, FirstBrokenRef: r.FirstBrokenRef, Reason: r.Reason}
}
