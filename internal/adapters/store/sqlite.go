package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of the StateRepository interface
type SQLiteStore struct {
	sqlStore
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		thread_key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		last_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_threads_last_at ON threads(last_at)`,
	`CREATE TABLE IF NOT EXISTS message_index (
		message_id TEXT PRIMARY KEY,
		thread_key TEXT NOT NULL,
		content_hash TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_message_index_thread ON message_index(thread_key)`,
	`CREATE TABLE IF NOT EXISTS content_index (
		thread_key TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (thread_key, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS processed (
		message_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS classifications (
		message_id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attributions (
		thread_key TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lead_scores (
		lead_id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_events (
		lead_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		PRIMARY KEY (lead_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		message_id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	)`,
}

// NewSQLiteStore creates a new SQLite state store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, ddl := range sqliteSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{sqlStore{
		db:     db,
		stmts:  sqliteStatements(),
		logger: logger,
	}}, nil
}

func sqliteStatements() statements {
	return statements{
		getThread: `SELECT data FROM threads WHERE thread_key = ?`,
		upsertThread: `INSERT INTO threads (thread_key, data, last_at) VALUES (?, ?, ?)
			ON CONFLICT (thread_key) DO UPDATE SET data = excluded.data, last_at = excluded.last_at`,
		deleteThreads:   `DELETE FROM threads WHERE last_at <= ?`,
		deleteMessages:  `DELETE FROM message_index WHERE thread_key IN (SELECT thread_key FROM threads WHERE last_at <= ?)`,
		deleteContent:   `DELETE FROM content_index WHERE thread_key IN (SELECT thread_key FROM threads WHERE last_at <= ?)`,
		threadKeyByMsg:  `SELECT thread_key FROM message_index WHERE message_id = ?`,
		seenMessage:     `SELECT 1 FROM message_index WHERE message_id = ?`,
		seenContent:     `SELECT 1 FROM content_index WHERE thread_key = ? AND content_hash = ?`,
		markSeenMessage: `INSERT OR IGNORE INTO message_index (message_id, thread_key, content_hash) VALUES (?, ?, ?)`,
		markSeenContent: `INSERT OR IGNORE INTO content_index (thread_key, content_hash) VALUES (?, ?)`,
		isProcessed:     `SELECT 1 FROM processed WHERE message_id = ?`,
		markProcessed:   `INSERT OR IGNORE INTO processed (message_id) VALUES (?)`,
		getRecord: map[string]string{
			"classifications": `SELECT data FROM classifications WHERE message_id = ?`,
			"attributions":    `SELECT data FROM attributions WHERE thread_key = ?`,
			"lead_scores":     `SELECT data FROM lead_scores WHERE lead_id = ?`,
			"decisions":       `SELECT data FROM decisions WHERE message_id = ?`,
		},
		upsertRecord: map[string]string{
			"classifications": `INSERT INTO classifications (message_id, data) VALUES (?, ?)
				ON CONFLICT (message_id) DO UPDATE SET data = excluded.data`,
			"attributions": `INSERT INTO attributions (thread_key, data) VALUES (?, ?)
				ON CONFLICT (thread_key) DO UPDATE SET data = excluded.data`,
			"lead_scores": `INSERT INTO lead_scores (lead_id, data) VALUES (?, ?)
				ON CONFLICT (lead_id) DO UPDATE SET data = excluded.data`,
			"decisions": `INSERT INTO decisions (message_id, data) VALUES (?, ?)
				ON CONFLICT (message_id) DO UPDATE SET data = excluded.data`,
		},
		insertEvent:    `INSERT OR IGNORE INTO score_events (lead_id, message_id) VALUES (?, ?)`,
		appendFeedback: `INSERT INTO feedback (data, recorded_at) VALUES (?, ?)`,
		listFeedback:   `SELECT data FROM feedback ORDER BY id DESC LIMIT ?`,
	}
}
