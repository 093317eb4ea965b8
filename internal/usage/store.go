package usage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one persisted usage row.
type Record struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	EstimatedCost    float64
	CreatedAt        time.Time
}

// Summary is an aggregate over persisted usage, grouped by provider and model.
type Summary struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	EstimatedCost    float64 `json:"estimatedCost"`
}

// Store persists usage records to a SQLite database so cost accounting
// survives process restarts. All writes are best-effort from the tracker's
// point of view.
type Store struct {
	db *sql.DB
}

const usageSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	estimated_cost REAL NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_provider_time ON usage_records(provider, created_at);
`

// OpenStore opens or creates the usage database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create usage db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(usageSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}

	return &Store{db: db}, nil
}

// Append inserts one usage record.
func (s *Store) Append(rec Record) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_records (provider, model, prompt_tokens, completion_tokens, estimated_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Provider, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.EstimatedCost,
		rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// Summarize aggregates persisted usage since a given time, grouped by
// provider and model. A zero since time aggregates everything.
func (s *Store) Summarize(since time.Time) ([]Summary, error) {
	query := `
		SELECT provider, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(estimated_cost)
		FROM usage_records
	`
	var args []interface{}
	if !since.IsZero() {
		query += " WHERE created_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += " GROUP BY provider, model ORDER BY provider, model"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.Provider, &sm.Model, &sm.Requests, &sm.PromptTokens, &sm.CompletionTokens, &sm.EstimatedCost); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
