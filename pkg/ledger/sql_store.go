package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore implements Store using database/sql. It supports both
// Postgres (lib/pq) and SQLite (modernc.org/sqlite) through $N
// placeholders, which both drivers accept.
//
// Timestamps are stored as RFC 3339 nano strings in UTC so the value
// that went into a record's hash round-trips exactly; a driver-level
// precision or zone conversion would silently break re-verification.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS decision_records (
	decision_ref TEXT PRIMARY KEY,
	chain_id TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	decision_value TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	model_id TEXT NOT NULL,
	model_version TEXT,
	ts TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	demographic_context TEXT,
	supersedes_ref TEXT,
	previous_hash TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	UNIQUE (chain_id, sequence)
);

CREATE INDEX IF NOT EXISTS idx_decision_records_model ON decision_records (model_id);

CREATE TABLE IF NOT EXISTS chain_heads (
	chain_id TEXT PRIMARY KEY,
	head_hash TEXT NOT NULL,
	version BIGINT NOT NULL
);
`

// Init creates the schema if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqlSchema)
	return err
}

func (s *SQLStore) Head(ctx context.Context, chainID string) (ChainHead, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chain_heads (chain_id, head_hash, version) VALUES ($1, $2, 0) ON CONFLICT (chain_id) DO NOTHING`,
		chainID, GenesisHash,
	)
	if err != nil {
		return ChainHead{}, fmt.Errorf("ledger: ensure chain head: %w", err)
	}

	var head ChainHead
	row := s.db.QueryRowContext(ctx,
		`SELECT chain_id, head_hash, version FROM chain_heads WHERE chain_id = $1`, chainID)
	if err := row.Scan(&head.ChainID, &head.HeadHash, &head.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChainHead{}, ErrNotFound
		}
		return ChainHead{}, err
	}
	return head, nil
}

func (s *SQLStore) AppendCAS(ctx context.Context, head ChainHead, rec *DecisionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Swap the head first: losers block on the row until the winner
	// commits, then match zero rows. This keeps conflict detection
	// driver-agnostic instead of parsing unique-violation errors.
	res, err := tx.ExecContext(ctx,
		`UPDATE chain_heads SET head_hash = $1, version = $2
		 WHERE chain_id = $3 AND head_hash = $4 AND version = $5`,
		rec.RecordHash, head.Version+1, head.ChainID, head.HeadHash, head.Version,
	)
	if err != nil {
		return fmt.Errorf("ledger: head swap: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: head swap rows: %w", err)
	}
	if affected == 0 {
		return ErrHeadConflict
	}

	demCtx, err := marshalContext(rec.DemographicContext)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO decision_records
		 (decision_ref, chain_id, sequence, decision_value, confidence, model_id, model_version,
		  ts, input_hash, output_hash, demographic_context, supersedes_ref, previous_hash, record_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.DecisionRef, rec.ChainID, rec.Sequence, rec.DecisionValue, rec.Confidence,
		rec.ModelID, nullable(rec.ModelVersion), rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.InputHash, rec.OutputHash, demCtx, nullable(rec.SupersedesRef),
		rec.PreviousHash, rec.RecordHash,
	)
	if err != nil {
		return fmt.Errorf("ledger: record insert: %w", err)
	}

	return tx.Commit()
}

const recordColumns = `decision_ref, chain_id, sequence, decision_value, confidence, model_id, model_version,
	ts, input_hash, output_hash, demographic_context, supersedes_ref, previous_hash, record_hash`

func (s *SQLStore) Get(ctx context.Context, decisionRef string) (*DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM decision_records WHERE decision_ref = $1`, decisionRef)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLStore) Query(ctx context.Context, filter QueryFilter) ([]*DecisionRecord, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ChainID != "" {
		add("chain_id = $%d", filter.ChainID)
	}
	if filter.DecisionRef != "" {
		add("decision_ref = $%d", filter.DecisionRef)
	}
	if filter.ModelID != "" {
		add("model_id = $%d", filter.ModelID)
	}
	if filter.SupersedesRef != "" {
		add("supersedes_ref = $%d", filter.SupersedesRef)
	}
	if filter.Since != nil {
		add("ts >= $%d", filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Until != nil {
		add("ts <= $%d", filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.FromSeq > 0 {
		add("sequence >= $%d", filter.FromSeq)
	}
	if filter.ToSeq > 0 {
		add("sequence <= $%d", filter.ToSeq)
	}

	query := `SELECT ` + recordColumns + ` FROM decision_records`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY chain_id, sequence`
	if filter.MaxResults > 0 {
		args = append(args, filter.MaxResults)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func (s *SQLStore) Range(ctx context.Context, chainID string, fromSeq, toSeq uint64) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM decision_records
		 WHERE chain_id = $1 AND sequence >= $2 AND sequence <= $3
		 ORDER BY sequence`,
		chainID, fromSeq, toSeq,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DecisionRecord, error) {
	var (
		rec        DecisionRecord
		ts         string
		modelVer   sql.NullString
		demCtx     sql.NullString
		supersedes sql.NullString
	)
	err := row.Scan(
		&rec.DecisionRef, &rec.ChainID, &rec.Sequence, &rec.DecisionValue, &rec.Confidence,
		&rec.ModelID, &modelVer, &ts, &rec.InputHash, &rec.OutputHash,
		&demCtx, &supersedes, &rec.PreviousHash, &rec.RecordHash,
	)
	if err != nil {
		return nil, err
	}
	rec.ModelVersion = modelVer.String
	rec.SupersedesRef = supersedes.String
	rec.Timestamp, err = parseTime(ts)
	if err != nil {
		return nil, err
	}
	if demCtx.Valid && demCtx.String != "" {
		if err := json.Unmarshal([]byte(demCtx.String), &rec.DemographicContext); err != nil {
			return nil, fmt.Errorf("ledger: corrupt demographic_context for %s: %w", rec.DecisionRef, err)
		}
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*DecisionRecord, error) {
	result := make([]*DecisionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger: unparseable timestamp %q: %w", value, err)
	}
	return t, nil
}

func marshalContext(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("ledger: marshal demographic_context: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
