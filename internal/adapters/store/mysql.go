package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the StateRepository interface
type MySQLStore struct {
	sqlStore
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		thread_key VARCHAR(191) PRIMARY KEY,
		data MEDIUMTEXT NOT NULL,
		last_at VARCHAR(64) NOT NULL,
		INDEX idx_threads_last_at (last_at)
	)`,
	`CREATE TABLE IF NOT EXISTS message_index (
		message_id VARCHAR(191) PRIMARY KEY,
		thread_key VARCHAR(191) NOT NULL,
		content_hash VARCHAR(64) NOT NULL,
		INDEX idx_message_index_thread (thread_key)
	)`,
	`CREATE TABLE IF NOT EXISTS content_index (
		thread_key VARCHAR(191) NOT NULL,
		content_hash VARCHAR(64) NOT NULL,
		PRIMARY KEY (thread_key, content_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS processed (
		message_id VARCHAR(191) PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS classifications (
		message_id VARCHAR(191) PRIMARY KEY,
		data MEDIUMTEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attributions (
		thread_key VARCHAR(191) PRIMARY KEY,
		data MEDIUMTEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lead_scores (
		lead_id VARCHAR(191) PRIMARY KEY,
		data MEDIUMTEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_events (
		lead_id VARCHAR(191) NOT NULL,
		message_id VARCHAR(191) NOT NULL,
		PRIMARY KEY (lead_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		message_id VARCHAR(191) PRIMARY KEY,
		data MEDIUMTEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		data MEDIUMTEXT NOT NULL,
		recorded_at VARCHAR(64) NOT NULL
	)`,
}

// NewMySQLStore creates a new MySQL state store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	for _, ddl := range mysqlSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{sqlStore{
		db:     db,
		stmts:  mysqlStatements(),
		logger: logger,
	}}, nil
}

func mysqlStatements() statements {
	return statements{
		getThread: `SELECT data FROM threads WHERE thread_key = ?`,
		upsertThread: `INSERT INTO threads (thread_key, data, last_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE data = VALUES(data), last_at = VALUES(last_at)`,
		deleteThreads:   `DELETE FROM threads WHERE last_at <= ?`,
		deleteMessages:  `DELETE FROM message_index WHERE thread_key IN (SELECT thread_key FROM threads WHERE last_at <= ?)`,
		deleteContent:   `DELETE FROM content_index WHERE thread_key IN (SELECT thread_key FROM threads WHERE last_at <= ?)`,
		threadKeyByMsg:  `SELECT thread_key FROM message_index WHERE message_id = ?`,
		seenMessage:     `SELECT 1 FROM message_index WHERE message_id = ?`,
		seenContent:     `SELECT 1 FROM content_index WHERE thread_key = ? AND content_hash = ?`,
		markSeenMessage: `INSERT IGNORE INTO message_index (message_id, thread_key, content_hash) VALUES (?, ?, ?)`,
		markSeenContent: `INSERT IGNORE INTO content_index (thread_key, content_hash) VALUES (?, ?)`,
		isProcessed:     `SELECT 1 FROM processed WHERE message_id = ?`,
		markProcessed:   `INSERT IGNORE INTO processed (message_id) VALUES (?)`,
		getRecord: map[string]string{
			"classifications": `SELECT data FROM classifications WHERE message_id = ?`,
			"attributions":    `SELECT data FROM attributions WHERE thread_key = ?`,
			"lead_scores":     `SELECT data FROM lead_scores WHERE lead_id = ?`,
			"decisions":       `SELECT data FROM decisions WHERE message_id = ?`,
		},
		upsertRecord: map[string]string{
			"classifications": `INSERT INTO classifications (message_id, data) VALUES (?, ?)
				ON DUPLICATE KEY UPDATE data = VALUES(data)`,
			"attributions": `INSERT INTO attributions (thread_key, data) VALUES (?, ?)
				ON DUPLICATE KEY UPDATE data = VALUES(data)`,
			"lead_scores": `INSERT INTO lead_scores (lead_id, data) VALUES (?, ?)
				ON DUPLICATE KEY UPDATE data = VALUES(data)`,
			"decisions": `INSERT INTO decisions (message_id, data) VALUES (?, ?)
				ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		},
		insertEvent:    `INSERT IGNORE INTO score_events (lead_id, message_id) VALUES (?, ?)`,
		appendFeedback: `INSERT INTO feedback (data, recorded_at) VALUES (?, ?)`,
		listFeedback:   `SELECT data FROM feedback ORDER BY id DESC LIMIT ?`,
	}
}
