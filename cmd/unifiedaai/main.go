package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/api"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/archive"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/config"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/evaluation"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/impact"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/observability"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/probe"

	_ "github.com/lib/pq" // Postgres Driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		startServer()
		return 0
	}

	switch args[1] {
	case "server", "serve":
		startServer()
		return 0
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "impact":
		return runImpactCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			startServer()
			return 0
		} else {
			fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
			printUsage(stderr)
			return 2
		}
	}
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUnifiedAAI Core %s%s\n", ColorBold+ColorBlue, "v1.0.0", ColorReset)
	fmt.Fprintf(w, "%sModels get verdicts. Verdicts get receipts.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  unifiedaai <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "server", "Run the evaluation server (default)")
	printCommand(w, "health", "Check server health (HTTP)")

	printSection(w, "EVALUATION")
	printCommand(w, "evaluate", "Score one model offline (--engine, --metrics-file)")

	printSection(w, "LEDGER & IMPACT")
	printCommand(w, "verify", "Verify a decision chain (--chain, --json)")
	printCommand(w, "impact", "Demographic impact report (--chain, --attribute)")

	printSection(w, "UTILITIES")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

//nolint:gocognit,gocyclo
func runServer() {
	fmt.Fprintf(os.Stdout, "%sUnifiedAAI Core starting...%s\n", ColorBold+ColorBlue, ColorReset)
	ctx := context.Background()
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	var (
		db  *sql.DB
		err error
	)

	// 1. Decision ledger backend
	if cfg.LiteMode() {
		fmt.Fprintf(os.Stdout, "ℹ️  DATABASE_URL not set. Falling back to %sLite Mode%s (SQLite).\n", ColorBold+ColorCyan, ColorReset)
		db, err = setupLiteMode(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to setup Lite Mode: %v", err)
		}
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("DB Ping failed: %v", err)
		}
		log.Println("[unifiedaai] postgres: connected")
	}

	store := ledger.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		log.Fatalf("Failed to init ledger schema: %v", err)
	}
	led := ledger.New(store)
	log.Println("[unifiedaai] ledger: ready")

	// 2. Scoring engines
	configs, err := config.LoadEngineConfigs(cfg.EngineConfigDir)
	if err != nil {
		log.Fatalf("Failed to load engine configs: %v", err)
	}
	log.Printf("[unifiedaai] engines: %d configured", len(configs))

	// 3. Evaluation pipeline
	svc := evaluation.New(configs, led)
	if cfg.ProbeEndpoint != "" {
		svc = svc.WithMetricSource(probe.NewClient(cfg.ProbeEndpoint))
		log.Printf("[unifiedaai] probe: %s", cfg.ProbeEndpoint)
	}

	archStore, err := archive.NewStoreFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to init evidence archive: %v", err)
	}
	svc = svc.WithArchiver(archStore)
	log.Println("[unifiedaai] archive: ready")

	// 4. Impact aggregator
	agg := impact.New(led).WithOptions(impact.Options{
		MinSampleCount:    cfg.MinSampleCount,
		CoverageThreshold: cfg.CoverageThreshold,
	})

	// 5. Observability (enabled only when a collector endpoint is set)
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = cfg.ServiceName
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obsCfg.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		log.Fatalf("Failed to init observability: %v", err)
	}
	led.WithContentionHook(func(chainID string) {
		obs.RecordContention(context.Background(), chainID)
	})

	// 6. HTTP surface
	srv := api.NewServer(svc, led, agg).
		WithLogger(logger).
		WithObservability(obs)

	if cfg.CheckpointSecret != "" {
		signer, err := ledger.NewCheckpointSigner([]byte(cfg.CheckpointSecret))
		if err != nil {
			log.Fatalf("Failed to init checkpoint signer: %v", err)
		}
		srv = srv.WithCheckpointSigner(signer)
		log.Println("[unifiedaai] checkpoints: enabled")
	}

	if cfg.RedisAddr != "" {
		limiter := api.NewRedisRateLimiter(cfg.RedisAddr, cfg.RateLimitRPS, cfg.RateLimitRPS*2)
		defer limiter.Close()
		srv = srv.WithRateLimiter(limiter.Middleware)
		log.Printf("[unifiedaai] rate limit: redis at %s", cfg.RedisAddr)
	} else {
		srv = srv.WithRateLimiter(api.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitRPS*2).Middleware)
	}

	if cfg.LiteMode() {
		srv = srv.WithIdempotencyStore(api.NewIdempotencyStore(24 * time.Hour))
	} else {
		idem := api.NewPostgresIdempotencyStore(db, 24*time.Hour)
		if err := idem.Init(ctx); err != nil {
			log.Fatalf("Failed to init idempotency store: %v", err)
		}
		srv = srv.WithIdempotencyStore(idem)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[unifiedaai] ready: http://localhost:%s", cfg.Port)
		log.Println("[unifiedaai] press ctrl+c to stop")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[unifiedaai] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[unifiedaai] http shutdown: %v", err)
	}
	_ = obs.Shutdown(shutdownCtx)
	_ = db.Close()
}

func runHealthCmd(out, errOut io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	var body struct {
		Status  string   `json:"status"`
		Engines []string `json:"engines"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "%s (engines: %s)\n", strings.ToUpper(body.Status), strings.Join(body.Engines, ", "))
	return 0
}
