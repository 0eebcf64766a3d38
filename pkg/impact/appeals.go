package impact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// AppealsFeed reports which decisions were appealed. Appeals are
// maintained outside the core by case-management tooling; the
// aggregator treats the feed as an input and never computes appeals
// itself.
type AppealsFeed interface {
	// AppealedRefs returns, for the given decision refs, the subset
	// that has at least one appeal on file.
	AppealedRefs(ctx context.Context, decisionRefs []string) (map[string]bool, error)
}

// NoopFeed reports no appeals.
type NoopFeed struct{}

func (NoopFeed) AppealedRefs(ctx context.Context, decisionRefs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// StaticFeed serves a fixed set of appealed refs. Used for offline
// reports and tests.
type StaticFeed map[string]bool

func (f StaticFeed) AppealedRefs(ctx context.Context, decisionRefs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(decisionRefs))
	for _, ref := range decisionRefs {
		if f[ref] {
			out[ref] = true
		}
	}
	return out, nil
}

// LoadAppealsFile reads a JSON array of appealed decision refs, the
// export format of the external appeals system.
func LoadAppealsFile(path string) (StaticFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("impact: read appeals file: %w", err)
	}
	var refs []string
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("impact: parse appeals file %s: %w", path, err)
	}
	feed := make(StaticFeed, len(refs))
	for _, ref := range refs {
		feed[ref] = true
	}
	return feed, nil
}
