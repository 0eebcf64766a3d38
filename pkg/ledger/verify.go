package ledger

import (
	"context"
	"fmt"
)

// VerifyChain recomputes every record hash in the window and compares it
// against the stored chain. The window is given as decision refs; empty
// refs span the whole chain. The scan stops at the first broken link: a
// mismatch invalidates everything after it by construction.
func (l *Ledger) VerifyChain(ctx context.Context, chainID, fromRef, toRef string) (*VerificationReport, error) {
	if chainID == "" {
		return nil, fmt.Errorf("ledger: chain_id is required")
	}

	fromSeq, toSeq, err := l.ResolveWindow(ctx, chainID, fromRef, toRef)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		ChainID: chainID,
		Valid:   true,
		FromSeq: fromSeq,
		ToSeq:   toSeq,
	}
	if toSeq == 0 {
		// Empty chain: nothing to verify.
		report.FromSeq = 0
		return report, nil
	}

	// Anchor the expected previous hash: genesis for a scan from the
	// start, the prior record's stored hash otherwise.
	expectedPrev := GenesisHash
	if fromSeq > 1 {
		prior, err := l.store.Range(ctx, chainID, fromSeq-1, fromSeq-1)
		if err != nil {
			return nil, err
		}
		if len(prior) != 1 {
			return nil, fmt.Errorf("ledger: missing anchor record at sequence %d: %w", fromSeq-1, ErrNotFound)
		}
		expectedPrev = prior[0].RecordHash
	}

	records, err := l.store.Range(ctx, chainID, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}

	expectedSeq := fromSeq
	for _, rec := range records {
		broken := func(reason string) *VerificationReport {
			report.Valid = false
			report.FirstBrokenRef = rec.DecisionRef
			report.Reason = reason
			return report
		}

		if rec.Sequence != expectedSeq {
			return broken(fmt.Sprintf("sequence gap: expected %d, found %d", expectedSeq, rec.Sequence)), nil
		}
		if rec.PreviousHash == GenesisHash && rec.Sequence != 1 {
			return broken(ErrGenesisViolation.Error()), nil
		}
		if rec.PreviousHash != expectedPrev {
			return broken(fmt.Sprintf("previous_hash mismatch: expected %s, stored %s", expectedPrev, rec.PreviousHash)), nil
		}

		computed, err := ComputeRecordHash(rec)
		if err != nil {
			return nil, fmt.Errorf("ledger: hash recomputation failed at %s: %w", rec.DecisionRef, err)
		}
		if computed != rec.RecordHash {
			return broken("record_hash mismatch"), nil
		}

		expectedPrev = rec.RecordHash
		expectedSeq++
		report.RecordsChecked++
	}

	if uint64(report.RecordsChecked) != toSeq-fromSeq+1 {
		report.Valid = false
		report.Reason = fmt.Sprintf("expected %d records in window, found %d", toSeq-fromSeq+1, report.RecordsChecked)
	}
	return report, nil
}
