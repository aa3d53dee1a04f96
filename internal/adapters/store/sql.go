package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// statements holds the dialect-specific SQL for the shared store engine.
// Query placeholders are `?` for SQLite and MySQL; the Postgres constructor
// rebinds them to `$n`.
type statements struct {
	getThread       string
	upsertThread    string
	deleteThreads   string
	deleteMessages  string
	deleteContent   string
	threadKeyByMsg  string
	seenMessage     string
	seenContent     string
	markSeenMessage string
	markSeenContent string
	isProcessed     string
	markProcessed   string
	getRecord       map[string]string // table -> select by key
	upsertRecord    map[string]string // table -> upsert by key
	insertEvent     string
	appendFeedback  string
	listFeedback    string
}

// sqlStore implements StateRepository against any database/sql backend.
// Records are stored as JSON blobs keyed by their natural identifier; only
// the columns needed for lookups and retention exist as real columns.
type sqlStore struct {
	db     *sql.DB
	stmts  statements
	logger *zap.Logger
}

// GetThread retrieves a thread by key
func (s *sqlStore) GetThread(ctx context.Context, key string) (*core.Thread, error) {
	var thread core.Thread
	if err := s.getJSON(ctx, s.stmts.getThread, &thread, key); err != nil {
		return nil, err
	}
	return &thread, nil
}

// PutThread stores or replaces a thread
func (s *sqlStore) PutThread(ctx context.Context, thread *core.Thread) error {
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.stmts.upsertThread,
		thread.Key, string(data), thread.LastAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store thread: %w", err)
	}
	return nil
}

// ThreadKeyByMessageID resolves the thread that ingested a message id
func (s *sqlStore) ThreadKeyByMessageID(ctx context.Context, messageID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, s.stmts.threadKeyByMsg, messageID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query message index: %w", err)
	}
	return key, nil
}

// SeenMessage reports whether a message id has already been ingested
func (s *sqlStore) SeenMessage(ctx context.Context, messageID string) (bool, error) {
	return s.exists(ctx, s.stmts.seenMessage, messageID)
}

// SeenContent reports whether a content hash was already seen in a thread
func (s *sqlStore) SeenContent(ctx context.Context, threadKey, contentHash string) (bool, error) {
	return s.exists(ctx, s.stmts.seenContent, threadKey, contentHash)
}

// MarkSeen records a message id and its content hash in the dedup index
func (s *sqlStore) MarkSeen(ctx context.Context, messageID, threadKey, contentHash string) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.markSeenMessage, messageID, threadKey, contentHash); err != nil {
		return fmt.Errorf("failed to index message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.stmts.markSeenContent, threadKey, contentHash); err != nil {
		return fmt.Errorf("failed to index content hash: %w", err)
	}
	return nil
}

// IsProcessed reports whether a message id was fully processed
func (s *sqlStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	return s.exists(ctx, s.stmts.isProcessed, messageID)
}

// MarkProcessed sets the fully-processed marker for a message id
func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, s.stmts.markProcessed, messageID); err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// PutClassification stores the classification for a message
func (s *sqlStore) PutClassification(ctx context.Context, result *core.ClassificationResult) error {
	return s.putJSON(ctx, "classifications", result.MessageID, result)
}

// GetClassification retrieves a stored classification
func (s *sqlStore) GetClassification(ctx context.Context, messageID string) (*core.ClassificationResult, error) {
	var result core.ClassificationResult
	if err := s.getJSON(ctx, s.stmts.getRecord["classifications"], &result, messageID); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAttribution retrieves the attribution for a thread
func (s *sqlStore) GetAttribution(ctx context.Context, threadKey string) (*core.AttributionRecord, error) {
	var record core.AttributionRecord
	if err := s.getJSON(ctx, s.stmts.getRecord["attributions"], &record, threadKey); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutAttribution stores or replaces the attribution record for a thread
func (s *sqlStore) PutAttribution(ctx context.Context, record *core.AttributionRecord) error {
	return s.putJSON(ctx, "attributions", record.ThreadKey, record)
}

// GetScore retrieves the lead score record
func (s *sqlStore) GetScore(ctx context.Context, leadID string) (*core.LeadScore, error) {
	var score core.LeadScore
	if err := s.getJSON(ctx, s.stmts.getRecord["lead_scores"], &score, leadID); err != nil {
		return nil, err
	}
	return &score, nil
}

// UpdateScore replaces the lead score record, at most once per (lead, message).
// The score event row is the idempotency guard: if it already exists the
// stored record is returned untouched.
func (s *sqlStore) UpdateScore(ctx context.Context, score *core.LeadScore, messageID string) (*core.LeadScore, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin score transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.stmts.insertEvent, score.LeadID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to record score event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read score event result: %w", err)
	}
	if affected == 0 {
		// Already applied for this message
		var data string
		err := tx.QueryRowContext(ctx, s.stmts.getRecord["lead_scores"], score.LeadID).Scan(&data)
		if err == sql.ErrNoRows {
			return score, tx.Commit()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load stored score: %w", err)
		}
		var stored core.LeadScore
		if err := json.Unmarshal([]byte(data), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored score: %w", err)
		}
		return &stored, tx.Commit()
	}

	data, err := json.Marshal(score)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.stmts.upsertRecord["lead_scores"], score.LeadID, string(data)); err != nil {
		return nil, fmt.Errorf("failed to store score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit score transaction: %w", err)
	}
	return score, nil
}

// PutDecision stores the decision for a message
func (s *sqlStore) PutDecision(ctx context.Context, decision *core.ActionDecision) error {
	return s.putJSON(ctx, "decisions", decision.MessageID, decision)
}

// GetDecision retrieves a stored decision
func (s *sqlStore) GetDecision(ctx context.Context, messageID string) (*core.ActionDecision, error) {
	var decision core.ActionDecision
	if err := s.getJSON(ctx, s.stmts.getRecord["decisions"], &decision, messageID); err != nil {
		return nil, err
	}
	return &decision, nil
}

// AppendFeedback appends a calibration sample to the feedback log
func (s *sqlStore) AppendFeedback(ctx context.Context, sample *core.FeedbackSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback sample: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.stmts.appendFeedback,
		string(data), sample.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns up to limit most recent calibration samples
func (s *sqlStore) ListFeedback(ctx context.Context, limit int) ([]*core.FeedbackSample, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.listFeedback, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var samples []*core.FeedbackSample
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		var sample core.FeedbackSample
		if err := json.Unmarshal([]byte(data), &sample); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feedback sample: %w", err)
		}
		samples = append(samples, &sample)
	}
	return samples, rows.Err()
}

// CleanupThreads removes threads with no activity since the cutoff, along
// with their dedup index entries
func (s *sqlStore) CleanupThreads(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := olderThan.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.stmts.deleteMessages, cutoff); err != nil {
		return 0, fmt.Errorf("failed to clean up message index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.stmts.deleteContent, cutoff); err != nil {
		return 0, fmt.Errorf("failed to clean up content index: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.stmts.deleteThreads, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up threads: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup transaction: %w", err)
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up stale threads", zap.Int64("removed", removed))
	}
	return int(removed), nil
}

// getJSON loads a single JSON blob into out
func (s *sqlStore) getJSON(ctx context.Context, query string, out interface{}, args ...interface{}) error {
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err == sql.ErrNoRows {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query record: %w", err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// putJSON upserts a single JSON blob under its key
func (s *sqlStore) putJSON(ctx context.Context, table, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.stmts.upsertRecord[table], key, string(data)); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// exists runs an existence probe query
func (s *sqlStore) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query index: %w", err)
	}
	return true, nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}
