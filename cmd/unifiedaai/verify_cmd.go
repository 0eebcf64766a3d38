package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// runVerifyCmd implements `unifiedaai verify`.
//
// Walks a decision chain and checks every link: sequence, previous-hash
// binding, and recomputed record hashes. Verification fails closed on
// the first broken record.
//
// Exit codes:
//
//	0 = chain verified
//	1 = chain broken
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		chainID    string
		fromRef    string
		toRef      string
		jsonOutput bool
	)

	cmd.StringVar(&chainID, "chain", "", "Chain to verify (REQUIRED)")
	cmd.StringVar(&fromRef, "from", "", "First decision ref of the window (default: chain start)")
	cmd.StringVar(&toRef, "to", "", "Last decision ref of the window (default: chain head)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if chainID == "" {
		fmt.Fprintln(stderr, "Error: --chain is required")
		return 2
	}

	ctx := context.Background()
	db, led, err := openLedger(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening ledger: %v\n", err)
		return 2
	}
	defer db.Close()

	report, err := led.VerifyChain(ctx, chainID, fromRef, toRef)
	if err != nil {
		fmt.Fprintf(stderr, "Error: verification failed: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if report.Valid {
		fmt.Fprintf(stdout, "✅ Chain verification PASSED\n")
		fmt.Fprintf(stdout, "Chain:   %s\n", report.ChainID)
		fmt.Fprintf(stdout, "Window:  seq %d..%d\n", report.FromSeq, report.ToSeq)
		fmt.Fprintf(stdout, "Records: %d\n", report.RecordsChecked)
	} else {
		fmt.Fprintf(stdout, "❌ Chain verification FAILED\n")
		fmt.Fprintf(stdout, "Chain:        %s\n", report.ChainID)
		fmt.Fprintf(stdout, "First broken: %s\n", report.FirstBrokenRef)
		fmt.Fprintf(stdout, "Reason:       %s\n", report.Reason)
	}

	if !report.Valid {
		return 1
	}
	return 0
}
