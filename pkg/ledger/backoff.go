package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffPolicy shapes the delay between append retries after a lost
// head compare-and-swap.
type BackoffPolicy struct {
	BaseMS      int64
	MaxMS       int64
	MaxJitterMS int64
}

// DefaultBackoffPolicy suits short CAS races on a hot chain head.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{BaseMS: 10, MaxMS: 250, MaxJitterMS: 50}
}

// computeBackoff returns the delay before retry number attempt (0-based).
// Exponential growth capped at MaxMS, plus deterministic jitter seeded by
// the decision ref so contending writers de-synchronize reproducibly.
func computeBackoff(decisionRef string, attempt int, p BackoffPolicy) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}

	delay := p.BaseMS * factor
	if delay > p.MaxMS {
		delay = p.MaxMS
	}

	return time.Duration(delay+deterministicJitter(decisionRef, attempt, p.MaxJitterMS)) * time.Millisecond
}

func deterministicJitter(decisionRef string, attempt int, maxJitterMS int64) int64 {
	if maxJitterMS <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%d", decisionRef, attempt)
	hash := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(hash[:8])
	return int64(basis % uint64(maxJitterMS))
}
