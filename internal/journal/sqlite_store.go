// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// SQLiteConfig defines the SQLite operational parameters.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id     TEXT    NOT NULL,
	at             INTEGER NOT NULL,
	kind           TEXT    NOT NULL,
	event          TEXT    NOT NULL,
	from_state     TEXT    NOT NULL DEFAULT '',
	to_state       TEXT    NOT NULL DEFAULT '',
	correlation_id TEXT    NOT NULL DEFAULT '',
	outcome        TEXT    NOT NULL DEFAULT '',
	detail         TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS journal_session ON journal(session_id, id);
CREATE INDEX IF NOT EXISTS journal_at ON journal(at);
`

// SQLiteStore persists entries in a single SQLite table. Append order is
// the autoincrement id, so entries with equal timestamps keep their order.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the journal database at path with WAL
// mode and busy_timeout applied to every pooled connection.
func OpenSQLiteStore(path string, cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite journal: empty path")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite journal: ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite journal: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal (session_id, at, kind, event, from_state, to_state, correlation_id, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.At.UnixNano(), string(e.Kind), e.Event, e.From, e.To, e.CorrelationID, e.Outcome, e.Detail)
	if err != nil {
		return s.wrap("append", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, at, kind, event, from_state, to_state, correlation_id, outcome, detail
		 FROM journal WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, s.wrap("history", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			at   int64
			kind string
		)
		if err := rows.Scan(&e.SessionID, &at, &kind, &e.Event, &e.From, &e.To, &e.CorrelationID, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("sqlite journal: scan: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("history", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE at < ?`, before.UnixNano())
	if err != nil {
		return 0, s.wrap("prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite journal: rows affected: %w", err)
	}
	return int(n), nil
}

// Check runs PRAGMA quick_check. Success is exactly one row reading "ok".
func (s *SQLiteStore) Check(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA quick_check;")
	if err != nil {
		return s.wrap("quick_check", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return fmt.Errorf("sqlite journal: scan quick_check: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return s.wrap("quick_check", err)
	}
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil
	}
	if len(results) == 0 {
		return errors.New("sqlite journal: quick_check returned no rows")
	}
	return fmt.Errorf("sqlite journal: integrity: %s", strings.Join(results, "; "))
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) wrap(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("sqlite journal: %s: %w", op, ErrClosed)
	}
	return fmt.Errorf("sqlite journal: %s: %w", op, err)
}

var (
	_ Store   = (*SQLiteStore)(nil)
	_ Checker = (*SQLiteStore)(nil)
)
