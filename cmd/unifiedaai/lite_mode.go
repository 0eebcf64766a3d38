package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/config"
	"github.com/Aryanshanu/unifiedaai-sub002/pkg/ledger"

	_ "modernc.org/sqlite"
)

// setupLiteMode opens the embedded SQLite database under dataDir. The
// schema is initialized by the caller; the ledger store speaks the same
// SQL on both backends.
func setupLiteMode(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "unifiedaai.db")
	log.Printf("[unifiedaai] lite mode: using sqlite at %s", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// openLedger opens the decision ledger for offline subcommands:
// Postgres when DATABASE_URL is set, the lite mode database otherwise.
func openLedger(ctx context.Context) (*sql.DB, *ledger.Ledger, error) {
	cfg := config.Load()

	var (
		db  *sql.DB
		err error
	)
	if cfg.LiteMode() {
		db, err = setupLiteMode(cfg.DataDir)
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
	}
	if err != nil {
		return nil, nil, err
	}

	store := ledger.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to init ledger schema: %w", err)
	}
	return db, ledger.New(store), nil
}
