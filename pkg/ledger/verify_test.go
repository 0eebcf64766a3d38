package ledger

import (
	"context"
	"testing"
	"time"
)

func buildChain(t *testing.T, n int) (*Ledger, *MemoryStore, []*DecisionRecord) {
	t.Helper()
	l, store := newTestLedger()
	records := make([]*DecisionRecord, n)
	for i := 0; i < n; i++ {
		rec, err := l.Append(context.Background(), "chain-v", validDraft())
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		records[i] = rec
	}
	return l, store, records
}

func TestVerifyChain_ValidChain(t *testing.T) {
	l, _, _ := buildChain(t, 10)

	report, err := l.VerifyChain(context.Background(), "chain-v", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Fatalf("untouched chain reported invalid: %+v", report)
	}
	if report.RecordsChecked != 10 {
		t.Errorf("expected 10 records checked, got %d", report.RecordsChecked)
	}
	if report.Err() != nil {
		t.Errorf("valid report must convert to nil error")
	}
}

func TestVerifyChain_EmptyChain(t *testing.T) {
	l, _ := newTestLedger()

	report, err := l.VerifyChain(context.Background(), "never-written", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.RecordsChecked != 0 {
		t.Errorf("empty chain must verify trivially: %+v", report)
	}
}

func TestVerifyChain_TamperedFields(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*DecisionRecord)
	}{
		{"decision_value", func(r *DecisionRecord) { r.DecisionValue = "FAIL" }},
		{"confidence", func(r *DecisionRecord) { r.Confidence = 0.5 }},
		{"model_id", func(r *DecisionRecord) { r.ModelID = "other" }},
		{"timestamp", func(r *DecisionRecord) { r.Timestamp = r.Timestamp.Add(time.Minute) }},
		{"input_hash", func(r *DecisionRecord) { r.InputHash = "sha256:" + repeatHex("ee") }},
		{"output_hash", func(r *DecisionRecord) { r.OutputHash = "sha256:" + repeatHex("ff") }},
		{"demographic_context", func(r *DecisionRecord) { r.DemographicContext = map[string]string{"age": "x"} }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			l, store, records := buildChain(t, 5)
			target := records[2]

			// Reach into the store: tampering is exactly an out-of-band
			// mutation of persisted state.
			m.mutate(store.chains["chain-v"][2])

			report, err := l.VerifyChain(context.Background(), "chain-v", "", "")
			if err != nil {
				t.Fatal(err)
			}
			if report.Valid {
				t.Fatal("tampered chain reported valid")
			}
			if report.FirstBrokenRef != target.DecisionRef {
				t.Errorf("first_broken_ref = %s, want %s", report.FirstBrokenRef, target.DecisionRef)
			}
			if report.Err() == nil {
				t.Error("invalid report must convert to an IntegrityError")
			}
		})
	}
}

func TestVerifyChain_ScanStopsAtFirstBreak(t *testing.T) {
	l, store, records := buildChain(t, 5)

	// Break records 2 and 4; only the first must be reported.
	store.chains["chain-v"][1].DecisionValue = "X"
	store.chains["chain-v"][3].DecisionValue = "Y"

	report, err := l.VerifyChain(context.Background(), "chain-v", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("broken chain reported valid")
	}
	if report.FirstBrokenRef != records[1].DecisionRef {
		t.Errorf("scan must stop at the first break, reported %s", report.FirstBrokenRef)
	}
}

func TestVerifyChain_SubRange(t *testing.T) {
	l, store, records := buildChain(t, 8)

	report, err := l.VerifyChain(context.Background(), "chain-v", records[2].DecisionRef, records[6].DecisionRef)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Fatalf("valid subrange reported invalid: %+v", report)
	}
	if report.RecordsChecked != 5 {
		t.Errorf("expected 5 records checked, got %d", report.RecordsChecked)
	}

	// A tamper inside the subrange is caught; the anchor is the stored
	// hash of the record before the window.
	store.chains["chain-v"][4].Confidence = 0.1
	report, err = l.VerifyChain(context.Background(), "chain-v", records[2].DecisionRef, records[6].DecisionRef)
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid || report.FirstBrokenRef != records[4].DecisionRef {
		t.Errorf("subrange tamper not located: %+v", report)
	}
}

func TestVerifyChain_RecordHashTamper(t *testing.T) {
	l, store, records := buildChain(t, 3)

	// Rewriting record_hash itself breaks the stored-vs-computed check
	// on that record, and the previous_hash link of the successor.
	store.chains["chain-v"][0].RecordHash = "sha256:" + repeatHex("99")

	report, err := l.VerifyChain(context.Background(), "chain-v", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid || report.FirstBrokenRef != records[0].DecisionRef {
		t.Errorf("record_hash tamper not located at first record: %+v", report)
	}
}

func TestVerifyChain_GenesisViolation(t *testing.T) {
	l, store, records := buildChain(t, 3)

	store.chains["chain-v"][1].PreviousHash = GenesisHash

	report, err := l.VerifyChain(context.Background(), "chain-v", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("genesis reference past sequence 1 must invalidate")
	}
	if report.FirstBrokenRef != records[1].DecisionRef {
		t.Errorf("first_broken_ref = %s, want %s", report.FirstBrokenRef, records[1].DecisionRef)
	}
}

func repeatHex(pair string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += pair
	}
	return out
}
