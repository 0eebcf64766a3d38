package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/config"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evaluation"
)

// runEvaluateCmd implements `unifiedaai evaluate`.
//
// Scores one model against one engine from a metrics file, seals the
// evidence, and appends the decision to the local ledger. The full run
// result (result, evidence, record) is printed as JSON.
//
// Exit codes:
//
//	0 = evaluated, compliant
//	1 = evaluated, not compliant
//	2 = runtime error
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		engineType   string
		metricsFile  string
		modelID      string
		modelVersion string
		chainID      string
	)

	cmd.StringVar(&engineType, "engine", "", "Engine type, e.g. toxicity (REQUIRED)")
	cmd.StringVar(&metricsFile, "metrics-file", "", "JSON file mapping metric keys to raw values (REQUIRED)")
	cmd.StringVar(&modelID, "model", "local", "Model ID the decision is recorded against")
	cmd.StringVar(&modelVersion, "model-version", "", "Model version recorded with the decision")
	cmd.StringVar(&chainID, "chain", "", "Chain to append to (default: the model's own chain)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if engineType == "" || metricsFile == "" {
		fmt.Fprintln(stderr, "Error: --engine and --metrics-file are required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading metrics: %v\n", err)
		return 2
	}
	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		fmt.Fprintf(stderr, "Error parsing metrics: %v\n", err)
		return 2
	}

	cfg := config.Load()
	configs, err := config.LoadEngineConfigs(cfg.EngineConfigDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading engine configs: %v\n", err)
		return 2
	}

	ctx := context.Background()
	db, led, err := openLedger(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening ledger: %v\n", err)
		return 2
	}
	defer db.Close()

	svc := evaluation.New(configs, led)
	result, err := svc.Run(ctx, evaluation.RunRequest{
		ModelID:      modelID,
		ModelVersion: modelVersion,
		EngineType:   engineType,
		ChainID:      chainID,
		RawMetrics:   metrics,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: evaluation failed: %v\n", err)
		return 2
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(out))

	if !result.Result.Compliant {
		return 1
	}
	return 0
}
