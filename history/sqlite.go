package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quillworks/relay"
)

const sqliteHistorySchema = `
CREATE TABLE IF NOT EXISTS attempt_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	is_success INTEGER NOT NULL,
	message TEXT NOT NULL,
	error_message TEXT NOT NULL,
	error_kind TEXT NOT NULL,
	at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempt_history_request
	ON attempt_history(request_id);`

const (
	defaultSQLiteDir = ".relay"
	defaultSQLiteDB  = "relay.db"
)

// SQLiteStore persists attempt records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default SQLite path for CLI storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteDir, defaultSQLiteDB), nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed history store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history: sqlite dsn is required")
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: sqlite open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteHistorySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts one attempt record.
func (s *SQLiteStore) Append(ctx context.Context, rec AttemptRecord) error {
	success := 0
	if rec.Result.IsSuccess() {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempt_history
			(request_id, provider, attempt, is_success, message, error_message, error_kind, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		string(rec.Provider),
		rec.Attempt,
		success,
		rec.Result.Message(),
		rec.Result.ErrorMessage(),
		rec.Result.ErrorKind().String(),
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert attempt record: %w", err)
	}
	return nil
}

// ListByRequest returns the records for one request ordered by attempt.
func (s *SQLiteStore) ListByRequest(ctx context.Context, requestID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, attempt, is_success, message, error_message, error_kind, at
		 FROM attempt_history
		 WHERE request_id = ?
		 ORDER BY attempt, id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query attempt records: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var (
			providerTag string
			attempt     int
			success     int
			message     string
			errMsg      string
			errKind     string
			at          string
		)
		if err := rows.Scan(&providerTag, &attempt, &success, &message, &errMsg, &errKind, &at); err != nil {
			return nil, fmt.Errorf("history: scan attempt record: %w", err)
		}

		rec := AttemptRecord{
			RequestID: requestID,
			Provider:  relay.Provider(providerTag),
			Attempt:   attempt,
		}
		if success == 1 {
			rec.Result = relay.Success(message)
		} else {
			rec.Result = relay.Failure(errMsg, relay.ErrorKind(errKind))
		}
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			rec.At = ts
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate attempt records: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
