package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/impact"
)

// runImpactCmd implements `unifiedaai impact`.
//
// Groups a chain's decisions by one demographic attribute and reports
// per-group rates, four-fifths ratios, and alerts. An appeals export
// and a custom CEL rule can be supplied alongside the built-in checks.
//
// Exit codes:
//
//	0 = report computed, no alerts
//	1 = report computed, alerts raised
//	2 = runtime error
func runImpactCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("impact", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		chainID     string
		attribute   string
		fromRef     string
		toRef       string
		appealsFile string
		ruleExpr    string
		minSamples  int
		jsonOutput  bool
	)

	cmd.StringVar(&chainID, "chain", "", "Chain to scan (REQUIRED)")
	cmd.StringVar(&attribute, "attribute", "", "Demographic attribute to group by (REQUIRED)")
	cmd.StringVar(&fromRef, "from", "", "First decision ref of the window (default: chain start)")
	cmd.StringVar(&toRef, "to", "", "Last decision ref of the window (default: chain head)")
	cmd.StringVar(&appealsFile, "appeals", "", "JSON file of appealed decision refs")
	cmd.StringVar(&ruleExpr, "rule", "", "CEL alert rule over group, reference, and ratio")
	cmd.IntVar(&minSamples, "min-samples", 0, "Minimum per-group sample count (default 30)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if chainID == "" || attribute == "" {
		fmt.Fprintln(stderr, "Error: --chain and --attribute are required")
		cmd.Usage()
		return 2
	}

	ctx := context.Background()
	db, led, err := openLedger(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening ledger: %v\n", err)
		return 2
	}
	defer db.Close()

	opts := impact.Options{MinSampleCount: minSamples}
	if ruleExpr != "" {
		opts.Rules = []impact.Rule{{Name: "cli", Expr: ruleExpr}}
	}

	agg := impact.New(led).WithOptions(opts)
	if appealsFile != "" {
		feed, err := impact.LoadAppealsFile(appealsFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		agg = agg.WithAppealsFeed(feed)
	}
	if ruleExpr != "" {
		engine, err := impact.NewRuleEngine()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		agg = agg.WithRuleEngine(engine)
	}

	report, err := agg.ComputeImpact(ctx, chainID, attribute, fromRef, toRef)
	if err != nil {
		fmt.Fprintf(stderr, "Error: impact scan failed: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		printImpactReport(stdout, report)
	}

	if len(report.Alerts) > 0 {
		return 1
	}
	return 0
}

func printImpactReport(w io.Writer, report *impact.Report) {
	fmt.Fprintf(w, "Impact report for chain %s, attribute %q\n", report.ChainID, report.Attribute)
	fmt.Fprintf(w, "Window:   seq %d..%d (%d records, %d with context)\n",
		report.FromSeq, report.ToSeq, report.ScannedRecords, report.CoveredRecords)
	fmt.Fprintf(w, "Coverage: %.0f%%\n", report.Coverage*100)

	for _, g := range report.Groups {
		marker := " "
		if g.Reference {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-16s n=%-5d positive=%.3f harm=%.3f appeal=%.3f %s\n",
			marker, g.Value, g.SampleCount, g.PositiveRate, g.HarmRate, g.AppealRate, g.Status)
	}

	if len(report.Alerts) == 0 {
		fmt.Fprintf(w, "✅ No alerts\n")
		return
	}
	for _, a := range report.Alerts {
		fmt.Fprintf(w, "⚠️  [%s] %s\n", a.Type, a.Message)
	}
}
