package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore is a PostgreSQL implementation of the StateRepository interface
type PostgresStore struct {
	sqlStore
}

var postgresSchema = []string{
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
		id BIGSERIAL PRIMARY KEY,
		data TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	)`,
}

// NewPostgresStore creates a new PostgreSQL state store
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	for _, ddl := range postgresSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostgresStore{sqlStore{
		db:     db,
		stmts:  postgresStatements(),
		logger: logger,
	}}, nil
}

func postgresStatements() statements {
	// The SQLite statement set uses standard ON CONFLICT upserts; replace the
	// driver-specific pieces and rebind the placeholders for lib/pq.
	stmts := sqliteStatements()
	stmts.markSeenMessage = `INSERT INTO message_index (message_id, thread_key, content_hash) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`
	stmts.markSeenContent = `INSERT INTO content_index (thread_key, content_hash) VALUES (?, ?) ON CONFLICT DO NOTHING`
	stmts.markProcessed = `INSERT INTO processed (message_id) VALUES (?) ON CONFLICT DO NOTHING`
	stmts.insertEvent = `INSERT INTO score_events (lead_id, message_id) VALUES (?, ?) ON CONFLICT DO NOTHING`

	stmts.getThread = rebind(stmts.getThread)
	stmts.upsertThread = rebind(stmts.upsertThread)
	stmts.deleteThreads = rebind(stmts.deleteThreads)
	stmts.deleteMessages = rebind(stmts.deleteMessages)
	stmts.deleteContent = rebind(stmts.deleteContent)
	stmts.threadKeyByMsg = rebind(stmts.threadKeyByMsg)
	stmts.seenMessage = rebind(stmts.seenMessage)
	stmts.seenContent = rebind(stmts.seenContent)
	stmts.markSeenMessage = rebind(stmts.markSeenMessage)
	stmts.markSeenContent = rebind(stmts.markSeenContent)
	stmts.isProcessed = rebind(stmts.isProcessed)
	stmts.markProcessed = rebind(stmts.markProcessed)
	stmts.insertEvent = rebind(stmts.insertEvent)
	stmts.appendFeedback = rebind(stmts.appendFeedback)
	stmts.listFeedback = rebind(stmts.listFeedback)
	for table, q := range stmts.getRecord {
		stmts.getRecord[table] = rebind(q)
	}
	for table, q := range stmts.upsertRecord {
		stmts.upsertRecord[table] = rebind(q)
	}
	return stmts
}

// rebind converts ? placeholders to the $n form lib/pq expects
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
