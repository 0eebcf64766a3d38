// Package impact computes demographic group statistics over a bounded
// window of decision records and raises disparate-impact and coverage
// alerts. It is read-only: records are immutable once appended, so a
// scan may run concurrently with ongoing appends to the same chain
// without blocking them.
package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
)

// Defaults for the aggregation thresholds. Both are overridable per
// deployment through Options.
const (
	DefaultMinSampleCount    = 30
	DefaultCoverageThreshold = 0.8

	// FourFifthsThreshold is the disparate-impact ratio below which a
	// group is flagged.
	FourFifthsThreshold = 0.8
)

// Alert types.
const (
	AlertDisparateImpact = "DISPARATE_IMPACT"
	AlertLowCoverage     = "LOW_COVERAGE"
	AlertCustomRule      = "CUSTOM_RULE"
)

// Group statuses. A group below the minimum sample count is reported as
// insufficient_data rather than silently included in or dropped from
// the ratio computation.
const (
	StatusOK               = "ok"
	StatusFlagged          = "flagged"
	StatusInsufficientData = "insufficient_data"
)

var (
	ErrChainRequired     = errors.New("impact: chain_id is required")
	ErrAttributeRequired = errors.New("impact: attribute is required")
)

// RecordSource is the slice of the ledger the aggregator reads:
// committed records over a resolved reference window. *ledger.Ledger
// satisfies it.
type RecordSource interface {
	Window(ctx context.Context, chainID, fromRef, toRef string) ([]*ledger.DecisionRecord, uint64, uint64, error)
}

// GroupStat holds the rates for one value of the grouping attribute.
// Ratio is the group's positive rate divided by the reference group's;
// it is zero when no ratio was computed (the group is the reference,
// has insufficient data, or no reference exists).
type GroupStat struct {
	Attribute    string  `json:"attribute"`
	Value        string  `json:"value"`
	SampleCount  int     `json:"sample_count"`
	PositiveRate float64 `json:"positive_rate"`
	HarmRate     float64 `json:"harm_rate"`
	AppealRate   float64 `json:"appeal_rate"`
	Ratio        float64 `json:"ratio,omitempty"`
	Status       string  `json:"status"`
	Reference    bool    `json:"reference,omitempty"`
}

// Alert flags a finding that needs human attention alongside the stats.
type Alert struct {
	Type       string  `json:"type"`
	Attribute  string  `json:"attribute"`
	GroupValue string  `json:"group_value,omitempty"`
	Ratio      float64 `json:"ratio,omitempty"`
	Coverage   float64 `json:"coverage,omitempty"`
	Rule       string  `json:"rule,omitempty"`
	Message    string  `json:"message"`
}

// Report is the result of one impact scan.
type Report struct {
	ChainID        string      `json:"chain_id"`
	Attribute      string      `json:"attribute"`
	FromSeq        uint64      `json:"from_seq"`
	ToSeq          uint64      `json:"to_seq"`
	ScannedRecords int         `json:"scanned_records"`
	CoveredRecords int         `json:"covered_records"`
	Coverage       float64     `json:"coverage"`
	ReferenceValue string      `json:"reference_value,omitempty"`
	Groups         []GroupStat `json:"groups"`
	Alerts         []Alert     `json:"alerts"`
	ComputedAt     time.Time   `json:"computed_at"`
}

// Options tune one aggregator. Decision values are matched exactly;
// anything not listed counts toward neither rate.
type Options struct {
	MinSampleCount    int
	CoverageThreshold float64
	PositiveValues    []string
	HarmValues        []string
	Rules             []Rule
}

// DefaultOptions matches the platform verdict labels: PASS is the
// favorable outcome, FAIL and ERROR count as harm.
func DefaultOptions() Options {
	return Options{
		MinSampleCount:    DefaultMinSampleCount,
		CoverageThreshold: DefaultCoverageThreshold,
		PositiveValues:    []string{"PASS"},
		HarmValues:        []string{"FAIL", "ERROR"},
	}
}

// Aggregator computes impact reports from a record source and an
// externally maintained appeals feed.
type Aggregator struct {
	source  RecordSource
	appeals AppealsFeed
	opts    Options
	rules   *RuleEngine
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates an aggregator with default options and no appeals feed.
func New(source RecordSource) *Aggregator {
	return &Aggregator{
		source:  source,
		appeals: NoopFeed{},
		opts:    DefaultOptions(),
		clock:   time.Now,
		logger:  slog.Default(),
	}
}

// WithOptions replaces the aggregation options. Zero-valued thresholds
// fall back to the defaults.
func (a *Aggregator) WithOptions(opts Options) *Aggregator {
	if opts.MinSampleCount <= 0 {
		opts.MinSampleCount = DefaultMinSampleCount
	}
	if opts.CoverageThreshold <= 0 {
		opts.CoverageThreshold = DefaultCoverageThreshold
	}
	if len(opts.PositiveValues) == 0 {
		opts.PositiveValues = DefaultOptions().PositiveValues
	}
	if len(opts.HarmValues) == 0 {
		opts.HarmValues = DefaultOptions().HarmValues
	}
	a.opts = opts
	return a
}

// WithAppealsFeed wires the external appeals feed.
func (a *Aggregator) WithAppealsFeed(feed AppealsFeed) *Aggregator {
	if feed != nil {
		a.appeals = feed
	}
	return a
}

// WithRuleEngine wires a compiled rule engine for Options.Rules.
func (a *Aggregator) WithRuleEngine(engine *RuleEngine) *Aggregator {
	a.rules = engine
	return a
}

// WithClock overrides the clock for deterministic testing.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

// WithLogger overrides the logger.
func (a *Aggregator) WithLogger(logger *slog.Logger) *Aggregator {
	a.logger = logger
	return a
}

type groupAccum struct {
	total    int
	positive int
	harm     int
	appealed int
	refs     []string
}

// ComputeImpact scans the window resolved from (fromRef, toRef) on
// chainID, groups the records whose demographic_context carries
// attribute, and returns per-group rates plus alerts.
//
// The reference group is the one with the highest positive rate among
// groups meeting the minimum sample count; ties break to the
// lexicographically smallest value. Groups below the minimum are
// reported with status insufficient_data and excluded from ratios.
func (a *Aggregator) ComputeImpact(ctx context.Context, chainID, attribute, fromRef, toRef string) (*Report, error) {
	if chainID == "" {
		return nil, ErrChainRequired
	}
	if attribute == "" {
		return nil, ErrAttributeRequired
	}

	records, fromSeq, toSeq, err := a.source.Window(ctx, chainID, fromRef, toRef)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ChainID:        chainID,
		Attribute:      attribute,
		FromSeq:        fromSeq,
		ToSeq:          toSeq,
		ScannedRecords: len(records),
		Groups:         []GroupStat{},
		Alerts:         []Alert{},
		ComputedAt:     a.clock().UTC(),
	}

	positive := toSet(a.opts.PositiveValues)
	harm := toSet(a.opts.HarmValues)

	accums := make(map[string]*groupAccum)
	var coveredRefs []string
	for _, rec := range records {
		value, ok := rec.DemographicContext[attribute]
		if !ok || value == "" {
			continue
		}
		acc := accums[value]
		if acc == nil {
			acc = &groupAccum{}
			accums[value] = acc
		}
		acc.total++
		if positive[rec.DecisionValue] {
			acc.positive++
		}
		if harm[rec.DecisionValue] {
			acc.harm++
		}
		acc.refs = append(acc.refs, rec.DecisionRef)
		coveredRefs = append(coveredRefs, rec.DecisionRef)
	}
	report.CoveredRecords = len(coveredRefs)
	if report.ScannedRecords > 0 {
		report.Coverage = float64(report.CoveredRecords) / float64(report.ScannedRecords)
	}

	appealed, err := a.appeals.AppealedRefs(ctx, coveredRefs)
	if err != nil {
		return nil, fmt.Errorf("impact: appeals feed: %w", err)
	}
	for _, acc := range accums {
		for _, ref := range acc.refs {
			if appealed[ref] {
				acc.appealed++
			}
		}
	}

	values := make([]string, 0, len(accums))
	for v := range accums {
		values = append(values, v)
	}
	sort.Strings(values)

	for _, v := range values {
		acc := accums[v]
		stat := GroupStat{
			Attribute:    attribute,
			Value:        v,
			SampleCount:  acc.total,
			PositiveRate: float64(acc.positive) / float64(acc.total),
			HarmRate:     float64(acc.harm) / float64(acc.total),
			AppealRate:   float64(acc.appealed) / float64(acc.total),
			Status:       StatusOK,
		}
		if acc.total < a.opts.MinSampleCount {
			stat.Status = StatusInsufficientData
		}
		report.Groups = append(report.Groups, stat)
	}

	refIdx := referenceIndex(report.Groups)
	if refIdx >= 0 {
		ref := &report.Groups[refIdx]
		ref.Reference = true
		ref.Ratio = 1
		report.ReferenceValue = ref.Value
	}

	if report.ScannedRecords > 0 && report.Coverage < a.opts.CoverageThreshold {
		report.Alerts = append(report.Alerts, Alert{
			Type:      AlertLowCoverage,
			Attribute: attribute,
			Coverage:  report.Coverage,
			Message: fmt.Sprintf("only %.1f%% of %d scanned records carry attribute %q (threshold %.0f%%)",
				report.Coverage*100, report.ScannedRecords, attribute, a.opts.CoverageThreshold*100),
		})
	}

	if refIdx >= 0 {
		reference := report.Groups[refIdx]
		for i := range report.Groups {
			g := &report.Groups[i]
			if i == refIdx || g.Status == StatusInsufficientData {
				continue
			}
			g.Ratio = ratioAgainst(g.PositiveRate, reference.PositiveRate)
			if g.Ratio < FourFifthsThreshold {
				g.Status = StatusFlagged
				report.Alerts = append(report.Alerts, Alert{
					Type:       AlertDisparateImpact,
					Attribute:  attribute,
					GroupValue: g.Value,
					Ratio:      g.Ratio,
					Message: fmt.Sprintf("group %q positive rate is %.3f of reference %q (four-fifths threshold %.2f)",
						g.Value, g.Ratio, reference.Value, FourFifthsThreshold),
				})
			}
		}

		if a.rules != nil && len(a.opts.Rules) > 0 {
			ruleAlerts, err := a.evaluateRules(report, refIdx)
			if err != nil {
				return nil, err
			}
			report.Alerts = append(report.Alerts, ruleAlerts...)
		}
	}

	a.logger.Debug("impact scan complete",
		"chain_id", chainID, "attribute", attribute,
		"scanned", report.ScannedRecords, "groups", len(report.Groups),
		"alerts", len(report.Alerts))
	return report, nil
}

func (a *Aggregator) evaluateRules(report *Report, refIdx int) ([]Alert, error) {
	reference := report.Groups[refIdx]
	var alerts []Alert
	for i := range report.Groups {
		g := report.Groups[i]
		if i == refIdx || g.Status == StatusInsufficientData {
			continue
		}
		for _, rule := range a.opts.Rules {
			matched, err := a.rules.Matches(rule, g, reference)
			if err != nil {
				return nil, fmt.Errorf("impact: rule %q: %w", rule.Name, err)
			}
			if matched {
				alerts = append(alerts, Alert{
					Type:       AlertCustomRule,
					Attribute:  report.Attribute,
					GroupValue: g.Value,
					Ratio:      g.Ratio,
					Rule:       rule.Name,
					Message:    fmt.Sprintf("rule %q matched group %q", rule.Name, g.Value),
				})
			}
		}
	}
	return alerts, nil
}

// referenceIndex picks the reference group: highest positive rate among
// groups with sufficient samples, ties broken by value. Returns -1 when
// every group lacks data, in which case no ratio is computed at all
// rather than anchoring ratios to an unreliable base.
func referenceIndex(groups []GroupStat) int {
	best := -1
	for i, g := range groups {
		if g.Status == StatusInsufficientData {
			continue
		}
		if best < 0 || g.PositiveRate > groups[best].PositiveRate {
			best = i
		}
	}
	return best
}

func ratioAgainst(rate, referenceRate float64) float64 {
	if referenceRate == 0 {
		// Reference approved nothing: every other rate is trivially
		// not below it, so nothing is flagged.
		return 1
	}
	return rate / referenceRate
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
