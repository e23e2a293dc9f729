// Package feedback persists executed commands with ratings and retrieves
// known-working commands for similar queries. Retrieval tries the vector
// index first and falls back to keyword overlap in SQLite.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lia/internal/domain"

	_ "modernc.org/sqlite"
)

const (
	resultCap = 2000
	// simThreshold is the minimum cosine similarity for a vector hit to
	// count as relevant.
	simThreshold = 0.5
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"do": true, "how": true, "what": true, "please": true,
}

// Store is the feedback database. Writes are serialized through a single
// SQLite connection.
type Store struct {
	db      *sql.DB
	vectors *VectorIndex
	logger  *slog.Logger
}

type Config struct {
	DBPath  string
	Vectors *VectorIndex // nil disables the semantic path
	Logger  *slog.Logger
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, vectors: cfg.Vectors, logger: cfg.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   DATETIME NOT NULL,
		query       TEXT,
		capability  TEXT,
		tool        TEXT,
		command     TEXT,
		result      TEXT,
		rating      INTEGER DEFAULT 0,
		success     BOOLEAN DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_history_query ON command_history(query);
	CREATE INDEX IF NOT EXISTS idx_history_rating ON command_history(rating DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one executed step. Successful steps are also indexed in
// the vector store; an indexing failure is logged, never fatal.
func (s *Store) Record(ctx context.Context, rec domain.FeedbackRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	result := rec.Result
	if len(result) > resultCap {
		result = result[:resultCap]
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_history (timestamp, query, capability, tool, command, result, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Query, rec.Capability, rec.Tool, rec.Command, result, rec.Success,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}

	if rec.Success && s.vectors != nil {
		meta := map[string]string{
			"query":      rec.Query,
			"capability": rec.Capability,
			"tool":       rec.Tool,
			"command":    rec.Command,
		}
		if err := s.vectors.Add(ctx, rec.Query, meta); err != nil {
			s.logger.Warn("vector indexing failed", "err", err)
		}
	}
	return nil
}

// RateLast sets the rating of the most recent command, clamped to [1,5].
func (s *Store) RateLast(ctx context.Context, rating int) error {
	if rating < 1 {
		rating = 1
	}
	if rating > 5 {
		rating = 5
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE command_history SET rating = ? WHERE id = (SELECT MAX(id) FROM command_history)`,
		rating,
	)
	if err != nil {
		return fmt.Errorf("rate command: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no commands recorded yet")
	}
	return nil
}

// FindSimilar retrieves past commands matching the query. The vector
// index is authoritative when it has relevant hits; otherwise keyword
// overlap against SQLite decides.
func (s *Store) FindSimilar(ctx context.Context, query string, minRating, limit int) []domain.FeedbackRecord {
	if limit <= 0 {
		limit = 3
	}

	if s.vectors != nil {
		hits, err := s.vectors.Search(ctx, query, limit)
		if err != nil {
			s.logger.Warn("vector search failed, falling back to keywords", "err", err)
		} else {
			var records []domain.FeedbackRecord
			for _, hit := range hits {
				if hit.Similarity < simThreshold {
					continue
				}
				records = append(records, domain.FeedbackRecord{
					Query:      hit.Metadata["query"],
					Capability: hit.Metadata["capability"],
					Tool:       hit.Metadata["tool"],
					Command:    hit.Metadata["command"],
					Success:    true,
				})
			}
			if len(records) > 0 {
				return records
			}
		}
	}

	return s.keywordSearch(ctx, query, minRating, limit)
}

func (s *Store) keywordSearch(ctx context.Context, query string, minRating, limit int) []domain.FeedbackRecord {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if stopWords[w] || len(w) <= 2 {
			continue
		}
		keywords = append(keywords, w)
	}
	if len(keywords) == 0 {
		return nil
	}

	conditions := make([]string, len(keywords))
	args := make([]any, 0, len(keywords)+2)
	for i, kw := range keywords {
		conditions[i] = "query LIKE ?"
		args = append(args, "%"+kw+"%")
	}
	args = append(args, minRating, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT query, capability, tool, command, result, rating
		 FROM command_history
		 WHERE (%s) AND rating >= ? AND success = 1
		 ORDER BY rating DESC LIMIT ?`, strings.Join(conditions, " OR ")), args...)
	if err != nil {
		s.logger.Error("keyword search failed", "err", err)
		return nil
	}
	defer rows.Close()

	var records []domain.FeedbackRecord
	for rows.Next() {
		var rec domain.FeedbackRecord
		if err := rows.Scan(&rec.Query, &rec.Capability, &rec.Tool, &rec.Command, &rec.Result, &rec.Rating); err != nil {
			s.logger.Error("keyword search scan failed", "err", err)
			return records
		}
		rec.Success = true
		records = append(records, rec)
	}
	return records
}

// History returns the most recent records, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]domain.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, query, capability, tool, command, rating, success
		 FROM command_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []domain.FeedbackRecord
	for rows.Next() {
		var rec domain.FeedbackRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Query, &rec.Capability, &rec.Tool, &rec.Command, &rec.Rating, &rec.Success); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats summarizes recorded commands and their ratings.
type Stats struct {
	Total     int
	AvgRating float64
	Positive  int // rated 4 or 5
	Negative  int // rated 1 or 2
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        AVG(CASE WHEN rating > 0 THEN rating END),
		        COALESCE(SUM(CASE WHEN rating >= 4 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN rating BETWEEN 1 AND 2 THEN 1 ELSE 0 END), 0)
		 FROM command_history`,
	).Scan(&st.Total, &avg, &st.Positive, &st.Negative)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	if avg.Valid {
		st.AvgRating = avg.Float64
	}
	return st, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
