package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evaluation"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/impact"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
)

func TestRunDefaultsToServer(t *testing.T) {
	calls := 0
	orig := startServer
	startServer = func() { calls++ }
	defer func() { startServer = orig }()

	var out, errOut bytes.Buffer
	if code := Run([]string{"unifiedaai"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if code := Run([]string{"unifiedaai", "server"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	// A flag-style first arg also falls through to the server.
	if code := Run([]string{"unifiedaai", "--port=9090"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if calls != 3 {
		t.Errorf("server starts = %d, want 3", calls)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"unifiedaai", "bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command: bogus") {
		t.Errorf("stderr = %q, want unknown command notice", errOut.String())
	}
}

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"unifiedaai", "help"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, name := range []string{"server", "evaluate", "verify", "impact", "health"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("usage missing %q", name)
		}
	}
}

func TestVerifyCmd_RequiresChain(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := runVerifyCmd(nil, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "--chain is required") {
		t.Errorf("stderr = %q, want required-flag notice", errOut.String())
	}
}

func TestImpactCmd_RequiresChainAndAttribute(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := runImpactCmd([]string{"--chain", "c"}, &out, &errOut); code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func writeMetricsFile(t *testing.T, metrics map[string]float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.json")
	data, err := json.Marshal(metrics)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestOfflinePipeline drives evaluate, verify, and impact end to end on
// the lite mode database.
func TestOfflinePipeline(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENGINE_CONFIG_DIR", "")

	passMetrics := writeMetricsFile(t, map[string]float64{
		"hate_speech": 95, "harassment": 90, "profanity": 88, "violence": 92, "self_harm": 99,
	})
	failMetrics := writeMetricsFile(t, map[string]float64{
		"hate_speech": 50, "harassment": 50, "profanity": 50, "violence": 50, "self_harm": 50,
	})

	var out, errOut bytes.Buffer
	code := Run([]string{"unifiedaai", "evaluate",
		"--engine", "toxicity", "--metrics-file", passMetrics,
		"--model", "model-cli", "--chain", "team-rollout",
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("evaluate exit = %d, want 0; stderr: %s", code, errOut.String())
	}

	var result evaluation.RunResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("evaluate output not JSON: %v", err)
	}
	if result.Result.Verdict != "PASS" {
		t.Errorf("verdict = %s, want PASS", result.Result.Verdict)
	}
	if result.Record.ChainID != "team-rollout" {
		t.Errorf("chain = %s, want team-rollout", result.Record.ChainID)
	}
	if result.Evidence.ContentHash != result.Record.OutputHash {
		t.Error("record must carry the evidence content hash")
	}

	// A non-compliant run still appends but exits 1.
	out.Reset()
	errOut.Reset()
	code = Run([]string{"unifiedaai", "evaluate",
		"--engine", "toxicity", "--metrics-file", failMetrics,
		"--model", "model-cli", "--chain", "team-rollout",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("non-compliant evaluate exit = %d, want 1; stderr: %s", code, errOut.String())
	}

	out.Reset()
	errOut.Reset()
	code = Run([]string{"unifiedaai", "verify", "--chain", "team-rollout", "--json"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("verify exit = %d, want 0; stderr: %s", code, errOut.String())
	}
	var report ledger.VerificationReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("verify output not JSON: %v", err)
	}
	if !report.Valid {
		t.Errorf("chain broken: %s (%s)", report.FirstBrokenRef, report.Reason)
	}
	if report.RecordsChecked != 2 {
		t.Errorf("records checked = %d, want 2", report.RecordsChecked)
	}

	// No demographic context was recorded, so the scan must flag the
	// coverage gap rather than report clean rates.
	out.Reset()
	errOut.Reset()
	code = Run([]string{"unifiedaai", "impact",
		"--chain", "team-rollout", "--attribute", "region", "--json",
	}, &out, &errOut)
	if code != 1 {
		t.Fatalf("impact exit = %d, want 1; stderr: %s", code, errOut.String())
	}
	var impactReport impact.Report
	if err := json.Unmarshal(out.Bytes(), &impactReport); err != nil {
		t.Fatalf("impact output not JSON: %v", err)
	}
	if len(impactReport.Alerts) != 1 || impactReport.Alerts[0].Type != impact.AlertLowCoverage {
		t.Errorf("alerts = %+v, want one LOW_COVERAGE", impactReport.Alerts)
	}
}

func TestEvaluateCmd_RejectsUnknownEngine(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENGINE_CONFIG_DIR", "")

	metrics := writeMetricsFile(t, map[string]float64{"x": 1})

	var out, errOut bytes.Buffer
	code := runEvaluateCmd([]string{"--engine", "astrology", "--metrics-file", metrics}, &out, &errOut)
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "astrology") {
		t.Errorf("stderr = %q, want unknown engine error", errOut.String())
	}
}

func TestVerifyCmd_HumanOutput(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENGINE_CONFIG_DIR", "")

	metrics := writeMetricsFile(t, map[string]float64{
		"hate_speech": 95, "harassment": 90, "profanity": 88, "violence": 92, "self_harm": 99,
	})

	var out, errOut bytes.Buffer
	if code := Run([]string{"unifiedaai", "evaluate",
		"--engine", "toxicity", "--metrics-file", metrics, "--chain", "hv",
	}, &out, &errOut); code != 0 {
		t.Fatalf("evaluate exit = %d; stderr: %s", code, errOut.String())
	}

	out.Reset()
	errOut.Reset()
	if code := Run([]string{"unifiedaai", "verify", "--chain", "hv"}, &out, &errOut); code != 0 {
		t.Fatalf("verify exit = %d; stderr: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "PASSED") {
		t.Errorf("output = %q, want PASSED banner", out.String())
	}
}
