// Package audit keeps an append-only record of every step the
// orchestrator executes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lia/internal/domain"

	_ "modernc.org/sqlite"
)

const resultCap = 2000

// Log is the append-only audit trail backed by SQLite.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLog(dbPath string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create audit directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db, logger: logger}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit migration failed: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   DATETIME NOT NULL,
		capability  TEXT,
		task        TEXT,
		result      TEXT,
		status      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_logs(timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append writes one entry. There is no update or delete path.
func (l *Log) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	result := entry.Result
	if len(result) > resultCap {
		result = result[:resultCap]
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, capability, task, result, status) VALUES (?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.Capability, entry.Task, result, entry.Status,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT timestamp, capability, task, result, status
		 FROM audit_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Timestamp, &e.Capability, &e.Task, &e.Result, &e.Status); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Log) Close() error {
	return l.db.Close()
}
