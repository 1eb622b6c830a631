// Package runstore is a local SQLite-backed record of pipeline runs and their
// final card sets. It sits at the persistence collaborator boundary:
// best-effort, and failures here must never abort the pipeline itself.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kbforge/knowledge-agent/internal/cards"
)

// Store persists run headers and merged results.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("runstore: missing db path")
	}
	p := filepath.Clean(trimmed)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at_unix_ms INTEGER NOT NULL,
			finished_at_unix_ms INTEGER,
			status TEXT NOT NULL,
			evidence_count INTEGER NOT NULL DEFAULT 0,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			card_count INTEGER NOT NULL DEFAULT 0,
			complete INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS run_results (
			run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
			result_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_unix_ms);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("runstore: init schema: %w", err)
		}
	}
	return nil
}

// Run is one recorded pipeline run.
type Run struct {
	RunID          string `json:"run_id"`
	StartedAtUnix  int64  `json:"started_at_unix_ms"`
	FinishedAtUnix int64  `json:"finished_at_unix_ms,omitempty"`
	Status         string `json:"status"`
	EvidenceCount  int    `json:"evidence_count"`
	ChunkCount     int    `json:"chunk_count"`
	CardCount      int    `json:"card_count"`
	Complete       bool   `json:"complete"`
	Error          string `json:"error,omitempty"`
}

// StartRun records a new run in "running" state.
func (s *Store) StartRun(ctx context.Context, runID string) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("runstore: missing run id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at_unix_ms, status) VALUES (?, ?, 'running')`,
		runID, time.Now().UnixMilli())
	return err
}

// FinishRun stores the merged result and marks the run succeeded.
func (s *Store) FinishRun(ctx context.Context, runID string, evidenceCount, chunkCount int, result cards.PipelineResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("runstore: marshal result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET finished_at_unix_ms = ?, status = 'succeeded',
			evidence_count = ?, chunk_count = ?, card_count = ?, complete = ?
		 WHERE run_id = ?`,
		time.Now().UnixMilli(), evidenceCount, chunkCount, result.CardCount, boolToInt(result.Complete), runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_results (run_id, result_json) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET result_json = excluded.result_json`,
		runID, string(resultJSON)); err != nil {
		return err
	}
	return tx.Commit()
}

// FailRun marks the run failed with an error summary.
func (s *Store) FailRun(ctx context.Context, runID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at_unix_ms = ?, status = 'failed', error = ? WHERE run_id = ?`,
		time.Now().UnixMilli(), strings.TrimSpace(errMsg), runID)
	return err
}

// GetRun returns one run header.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at_unix_ms, COALESCE(finished_at_unix_ms, 0), status,
			evidence_count, chunk_count, card_count, complete, COALESCE(error, '')
		 FROM runs WHERE run_id = ?`, strings.TrimSpace(runID))

	var r Run
	var complete int
	if err := row.Scan(&r.RunID, &r.StartedAtUnix, &r.FinishedAtUnix, &r.Status,
		&r.EvidenceCount, &r.ChunkCount, &r.CardCount, &complete, &r.Error); err != nil {
		return Run{}, err
	}
	r.Complete = complete != 0
	return r, nil
}

// GetResult returns the merged result for a finished run.
func (s *Store) GetResult(ctx context.Context, runID string) (cards.PipelineResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM run_results WHERE run_id = ?`, strings.TrimSpace(runID))
	var raw string
	if err := row.Scan(&raw); err != nil {
		return cards.PipelineResult{}, err
	}
	var result cards.PipelineResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return cards.PipelineResult{}, fmt.Errorf("runstore: decode result: %w", err)
	}
	return result, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at_unix_ms, COALESCE(finished_at_unix_ms, 0), status,
			evidence_count, chunk_count, card_count, complete, COALESCE(error, '')
		 FROM runs ORDER BY started_at_unix_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var complete int
		if err := rows.Scan(&r.RunID, &r.StartedAtUnix, &r.FinishedAtUnix, &r.Status,
			&r.EvidenceCount, &r.ChunkCount, &r.CardCount, &complete, &r.Error); err != nil {
			return nil, err
		}
		r.Complete = complete != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
