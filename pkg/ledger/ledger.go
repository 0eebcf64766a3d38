package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds the automatic CAS retries inside Append.
const DefaultMaxAttempts = 5

// Ledger is the sole writer of record_hash and previous_hash: every
// append goes through it, so no caller can construct a record that
// bypasses integrity.
type Ledger struct {
	store       Store
	clock       func() time.Time
	newRef      func() string
	maxAttempts int
	backoff     BackoffPolicy
	logger      *slog.Logger

	// onContention is invoked once per lost CAS, for metrics.
	onContention func(chainID string)
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{
		store:       store,
		clock:       time.Now,
		newRef:      func() string { return uuid.New().String() },
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoffPolicy(),
		logger:      slog.Default(),
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// WithRefGenerator overrides decision_ref generation.
func (l *Ledger) WithRefGenerator(gen func() string) *Ledger {
	l.newRef = gen
	return l
}

// WithMaxAttempts overrides the CAS retry budget.
func (l *Ledger) WithMaxAttempts(n int) *Ledger {
	if n > 0 {
		l.maxAttempts = n
	}
	return l
}

// WithBackoff overrides the retry backoff policy.
func (l *Ledger) WithBackoff(p BackoffPolicy) *Ledger {
	l.backoff = p
	return l
}

// WithLogger overrides the logger.
func (l *Ledger) WithLogger(logger *slog.Logger) *Ledger {
	l.logger = logger
	return l
}

// WithContentionHook registers a callback fired on every lost CAS.
func (l *Ledger) WithContentionHook(hook func(chainID string)) *Ledger {
	l.onContention = hook
	return l
}

// Append seals the draft into a DecisionRecord at the head of chainID.
//
// Each attempt reads the current head, computes the record hash with
// previous_hash = head hash, and compare-and-swaps the head. A lost race
// is retried with jittered backoff up to the attempt budget, after which
// ErrChainContended is returned and nothing has been written by this
// call. The record either exists fully formed and hash-valid, or not at
// all.
func (l *Ledger) Append(ctx context.Context, chainID string, d Draft) (*DecisionRecord, error) {
	if chainID == "" {
		return nil, fmt.Errorf("ledger: chain_id is required")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.SupersedesRef != "" {
		prior, err := l.store.Get(ctx, d.SupersedesRef)
		if err != nil {
			return nil, fmt.Errorf("ledger: supersedes_ref %s: %w", d.SupersedesRef, err)
		}
		if prior.ChainID != chainID {
			return nil, fmt.Errorf("ledger: supersedes_ref %s belongs to chain %s", d.SupersedesRef, prior.ChainID)
		}
	}

	ref := d.DecisionRef
	if ref == "" {
		ref = l.newRef()
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = l.clock()
	}
	ts = ts.UTC()

	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		head, err := l.store.Head(ctx, chainID)
		if err != nil {
			return nil, err
		}

		rec := &DecisionRecord{
			DecisionRef:        ref,
			ChainID:            chainID,
			Sequence:           head.Version + 1,
			DecisionValue:      d.DecisionValue,
			Confidence:         d.Confidence,
			ModelID:            d.ModelID,
			ModelVersion:       d.ModelVersion,
			Timestamp:          ts,
			InputHash:          d.InputHash,
			OutputHash:         d.OutputHash,
			DemographicContext: d.DemographicContext,
			SupersedesRef:      d.SupersedesRef,
			PreviousHash:       head.HeadHash,
		}
		rec.RecordHash, err = ComputeRecordHash(rec)
		if err != nil {
			return nil, err
		}

		err = l.store.AppendCAS(ctx, head, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrHeadConflict) {
			return nil, err
		}

		if l.onContention != nil {
			l.onContention(chainID)
		}
		l.logger.Debug("chain head contended, retrying",
			"chain_id", chainID, "decision_ref", ref, "attempt", attempt+1)

		if attempt == l.maxAttempts-1 {
			break
		}
		if err := sleepContext(ctx, computeBackoff(ref, attempt, l.backoff)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: chain %s after %d attempts", ErrChainContended, chainID, l.maxAttempts)
}

// Get returns one record by decision_ref.
func (l *Ledger) Get(ctx context.Context, decisionRef string) (*DecisionRecord, error) {
	return l.store.Get(ctx, decisionRef)
}

// Query returns records matching the filter. Read-only and never
// blocked by writers; it does not require chain verification to pass.
func (l *Ledger) Query(ctx context.Context, filter QueryFilter) ([]*DecisionRecord, error) {
	return l.store.Query(ctx, filter)
}

// Head returns the current head of chainID.
func (l *Ledger) Head(ctx context.Context, chainID string) (ChainHead, error) {
	if chainID == "" {
		return ChainHead{}, fmt.Errorf("ledger: chain_id is required")
	}
	return l.store.Head(ctx, chainID)
}

// ResolveWindow turns a (from_ref, to_ref) pair into a sequence range
// for chainID. Empty refs default to the chain start and the current
// head; the bound is fixed at resolution time, so a scan over it is
// reproducible even while the chain keeps growing.
func (l *Ledger) ResolveWindow(ctx context.Context, chainID, fromRef, toRef string) (fromSeq, toSeq uint64, err error) {
	fromSeq = 1
	if fromRef != "" {
		rec, err := l.refInChain(ctx, chainID, fromRef)
		if err != nil {
			return 0, 0, err
		}
		fromSeq = rec.Sequence
	}

	if toRef != "" {
		rec, err := l.refInChain(ctx, chainID, toRef)
		if err != nil {
			return 0, 0, err
		}
		toSeq = rec.Sequence
	} else {
		head, err := l.store.Head(ctx, chainID)
		if err != nil {
			return 0, 0, err
		}
		if head.Version == 0 && fromRef == "" {
			// Empty chain, unbounded window: nothing to scan.
			return 0, 0, nil
		}
		toSeq = head.Version
	}

	if fromSeq > toSeq {
		return 0, 0, fmt.Errorf("ledger: window is empty: from %d after to %d", fromSeq, toSeq)
	}
	return fromSeq, toSeq, nil
}

// Window returns the committed records in the range (from_ref, to_ref)
// resolves to, inclusive, plus the resolved bounds. Records appended
// after resolution are outside the bound and never appear, which keeps
// scans over the window reproducible.
func (l *Ledger) Window(ctx context.Context, chainID, fromRef, toRef string) ([]*DecisionRecord, uint64, uint64, error) {
	fromSeq, toSeq, err := l.ResolveWindow(ctx, chainID, fromRef, toRef)
	if err != nil {
		return nil, 0, 0, err
	}
	if toSeq == 0 {
		return nil, 0, 0, nil
	}
	records, err := l.store.Range(ctx, chainID, fromSeq, toSeq)
	if err != nil {
		return nil, 0, 0, err
	}
	return records, fromSeq, toSeq, nil
}

func (l *Ledger) refInChain(ctx context.Context, chainID, ref string) (*DecisionRecord, error) {
	rec, err := l.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec.ChainID != chainID {
		return nil, fmt.Errorf("ledger: record %s belongs to chain %s, not %s", ref, rec.ChainID, chainID)
	}
	return rec, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
