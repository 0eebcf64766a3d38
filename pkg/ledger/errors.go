package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record or chain is not found.
	ErrNotFound = errors.New("ledger: not found")

	// ErrHeadConflict signals a lost compare-and-swap: another writer
	// advanced the chain head first. Append retries on it internally.
	ErrHeadConflict = errors.New("ledger: chain head moved")

	// ErrChainContended is surfaced when the retry budget for head
	// contention is exhausted. Transient: the caller may resubmit the
	// whole append, never a partial one.
	ErrChainContended = errors.New("ledger: chain contended beyond retry budget")

	// ErrGenesisViolation is returned when a record other than the first
	// references the genesis sentinel.
	ErrGenesisViolation = errors.New("ledger: genesis hash referenced past sequence 1")
)

// IntegrityError reports the first broken link found by verification.
// Verification fails closed: everything after the break is untrusted by
// construction, so the scan stops there.
type IntegrityError struct {
	ChainID        string
	FirstBrokenRef string
	Reason         string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger: chain %s integrity broken at %s: %s", e.ChainID, e.FirstBrokenRef, e.Reason)
}
