package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"watchgraph/pkg/logger"
	"watchgraph/pkg/watchlist"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS completed_users (
	username     TEXT PRIMARY KEY,
	entries      TEXT NOT NULL,
	entry_count  INTEGER NOT NULL,
	completed_at TEXT NOT NULL
);`

const upsertCompletion = `
INSERT INTO completed_users (username, entries, entry_count, completed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
	entries = excluded.entries,
	entry_count = excluded.entry_count,
	completed_at = excluded.completed_at`

// Journal records each completed user in a SQLite table, one row per username
type Journal struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// OpenJournal opens or creates the journal database at path
func OpenJournal(path string, log logger.Logger) (*Journal, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// a single connection serialises writers on the one file
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	log.DebugWithFields("Journal opened", map[string]interface{}{
		"path": path,
	})

	return &Journal{db: db, path: path, logger: log}, nil
}

// Path returns the database file path
func (j *Journal) Path() string {
	return j.path
}

// Reset deletes every row
func (j *Journal) Reset() error {
	if _, err := j.db.Exec(`DELETE FROM completed_users`); err != nil {
		return fmt.Errorf("failed to reset journal: %w", err)
	}
	return nil
}

// Record upserts the row for username
func (j *Journal) Record(username string, list watchlist.Watchlist, _ *watchlist.ResultMap) error {
	return j.Upsert(context.Background(), username, list)
}

// Upsert stores list for username, replacing any earlier row
func (j *Journal) Upsert(ctx context.Context, username string, list watchlist.Watchlist) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode watchlist for %s: %w", username, err)
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := j.db.ExecContext(ctx, upsertCompletion, username, string(data), len(list), completedAt); err != nil {
		return fmt.Errorf("failed to journal %s: %w", username, err)
	}

	j.logger.DebugWithFields("User journaled", map[string]interface{}{
		"username": username,
		"entries":  len(list),
	})
	return nil
}

// Load returns every journaled user in first-completion order
func (j *Journal) Load(ctx context.Context) (*watchlist.ResultMap, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT username, entries FROM completed_users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	results := watchlist.NewResultMap()
	for rows.Next() {
		var username, data string
		if err := rows.Scan(&username, &data); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}

		var list watchlist.Watchlist
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			return nil, fmt.Errorf("failed to decode journaled watchlist for %s: %w", username, err)
		}
		results.Set(username, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return results, nil
}

// Count returns the number of journaled users
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal rows: %w", err)
	}
	return n, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
