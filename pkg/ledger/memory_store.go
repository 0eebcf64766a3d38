package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps chains in process memory. Used by the offline CLI
// subcommands and throughout the tests; server deployments use SQLStore.
type MemoryStore struct {
	mu     sync.RWMutex
	heads  map[string]ChainHead
	chains map[string][]*DecisionRecord
	byRef  map[string]*DecisionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		heads:  make(map[string]ChainHead),
		chains: make(map[string][]*DecisionRecord),
		byRef:  make(map[string]*DecisionRecord),
	}
}

func (s *MemoryStore) Head(ctx context.Context, chainID string) (ChainHead, error) {
	if err := ctx.Err(); err != nil {
		return ChainHead{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.heads[chainID]
	if !ok {
		head = ChainHead{ChainID: chainID, HeadHash: GenesisHash, Version: 0}
		s.heads[chainID] = head
	}
	return head, nil
}

func (s *MemoryStore) AppendCAS(ctx context.Context, head ChainHead, rec *DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.heads[head.ChainID]
	if !ok {
		current = ChainHead{ChainID: head.ChainID, HeadHash: GenesisHash, Version: 0}
	}
	if current.HeadHash != head.HeadHash || current.Version != head.Version {
		return ErrHeadConflict
	}
	if _, exists := s.byRef[rec.DecisionRef]; exists {
		return ErrHeadConflict
	}

	stored := cloneRecord(rec)
	s.chains[head.ChainID] = append(s.chains[head.ChainID], stored)
	s.byRef[stored.DecisionRef] = stored
	s.heads[head.ChainID] = ChainHead{
		ChainID:  head.ChainID,
		HeadHash: stored.RecordHash,
		Version:  head.Version + 1,
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, decisionRef string) (*DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byRef[decisionRef]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]*DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	chains := make([]string, 0, len(s.chains))
	if filter.ChainID != "" {
		chains = append(chains, filter.ChainID)
	} else {
		for id := range s.chains {
			chains = append(chains, id)
		}
		sort.Strings(chains)
	}

	results := make([]*DecisionRecord, 0)
	for _, id := range chains {
		for _, rec := range s.chains[id] {
			if !filter.Matches(rec) {
				continue
			}
			results = append(results, cloneRecord(rec))
			if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

func (s *MemoryStore) Range(ctx context.Context, chainID string, fromSeq, toSeq uint64) ([]*DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.chains[chainID]
	out := make([]*DecisionRecord, 0)
	for _, rec := range records {
		if rec.Sequence < fromSeq || rec.Sequence > toSeq {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// cloneRecord copies a record so callers can never mutate stored state.
func cloneRecord(r *DecisionRecord) *DecisionRecord {
	c := *r
	if r.DemographicContext != nil {
		c.DemographicContext = make(map[string]string, len(r.DemographicContext))
		for k, v := range r.DemographicContext {
			c.DemographicContext[k] = v
		}
	}
	return &c
}
