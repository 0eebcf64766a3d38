package ledger

import "context"

// Store persists records and chain heads. Implementations must make
// AppendCAS atomic: the record insert and the head swap land together or
// not at all, and only one writer wins a given head version.
type Store interface {
	// Head returns the current head for chainID, creating the genesis
	// head (GenesisHash, version 0) if the chain is new.
	Head(ctx context.Context, chainID string) (ChainHead, error)

	// AppendCAS inserts rec and swaps the chain head from head to
	// (rec.RecordHash, head.Version+1) in one atomic step. Returns
	// ErrHeadConflict when another writer advanced the head first.
	AppendCAS(ctx context.Context, head ChainHead, rec *DecisionRecord) error

	// Get returns the record with the given decision_ref.
	Get(ctx context.Context, decisionRef string) (*DecisionRecord, error)

	// Query returns records matching the filter, ordered by chain and
	// sequence.
	Query(ctx context.Context, filter QueryFilter) ([]*DecisionRecord, error)

	// Range returns chainID's records with fromSeq <= sequence <= toSeq,
	// in sequence order.
	Range(ctx context.Context, chainID string, fromSeq, toSeq uint64) ([]*DecisionRecord, error)
}
