package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists execution records in a single-file SQLite
// database. WAL mode keeps reads concurrent with the engine's
// fire-and-forget writes; the schema is migrated on open. Suited to the
// single-process deployment this engine targets.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id    TEXT PRIMARY KEY,
	workflow_id     TEXT NOT NULL DEFAULT '',
	tenant_id       TEXT NOT NULL DEFAULT '',
	executor_id     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	snapshot        TEXT NOT NULL,
	config          TEXT,
	debug           INTEGER NOT NULL DEFAULT 0,
	enable_parallel INTEGER NOT NULL DEFAULT 0,
	saved_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_tenant_saved
	ON executions(tenant_id, saved_at DESC);
`

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var _ ExecutionStore = (*SQLiteStore)(nil)

// SaveExecution implements collab.Persistence as an upsert, so repeated
// saves over an execution's lifetime converge on its final state.
func (s *SQLiteStore) SaveExecution(ctx context.Context, executionID string, snapshot map[string]any, tenantID, executorID string, config map[string]any, debug, enableParallel bool) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	var configJSON []byte
	if config != nil {
		if configJSON, err = json.Marshal(config); err != nil {
			return fmt.Errorf("store: marshal config: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions
			(execution_id, workflow_id, tenant_id, executor_id, status, snapshot, config, debug, enable_parallel, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			status = excluded.status,
			snapshot = excluded.snapshot,
			config = excluded.config,
			debug = excluded.debug,
			enable_parallel = excluded.enable_parallel,
			saved_at = excluded.saved_at`,
		executionID,
		snapshotString(snapshot, "workflow_id"),
		tenantID,
		executorID,
		snapshotString(snapshot, "status"),
		string(snapshotJSON),
		nullableString(configJSON),
		boolToInt(debug),
		boolToInt(enableParallel),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save execution %s: %w", executionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, workflow_id, tenant_id, executor_id, status, snapshot, config, debug, enable_parallel, saved_at
		FROM executions WHERE execution_id = ?`, executionID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, tenantID string, limit int) ([]*ExecutionRecord, error) {
	query := `
		SELECT execution_id, workflow_id, tenant_id, executor_id, status, snapshot, config, debug, enable_parallel, saved_at
		FROM executions`
	args := []any{}
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY saved_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list executions: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM executions WHERE execution_id = ?", executionID)
	if err != nil {
		return fmt.Errorf("store: delete execution %s: %w", executionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ExecutionRecord, error) {
	var (
		rec            ExecutionRecord
		snapshotJSON   string
		configJSON     sql.NullString
		debug          int
		enableParallel int
		savedAt        string
	)
	err := row.Scan(&rec.ExecutionID, &rec.WorkflowID, &rec.TenantID, &rec.ExecutorID, &rec.Status,
		&snapshotJSON, &configJSON, &debug, &enableParallel, &savedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshotJSON), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("store: decode snapshot for %s: %w", rec.ExecutionID, err)
	}
	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &rec.Config); err != nil {
			return nil, fmt.Errorf("store: decode config for %s: %w", rec.ExecutionID, err)
		}
	}
	rec.Debug = debug != 0
	rec.EnableParallel = enableParallel != 0
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		rec.SavedAt = t
	}
	return &rec, nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
