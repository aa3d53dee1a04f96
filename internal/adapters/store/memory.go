package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the StateRepository interface.
// It is used by the one-shot CLI and in tests; the daemon normally runs on
// one of the SQL-backed stores.
type MemoryStore struct {
	mu              sync.RWMutex
	threads         map[string]*core.Thread
	messageIndex    map[string]string          // message id -> thread key
	contentIndex    map[string]map[string]bool // thread key -> content hashes
	processed       map[string]bool
	classifications map[string]*core.ClassificationResult
	attributions    map[string]*core.AttributionRecord
	scores          map[string]*core.LeadScore
	scoreEvents     map[string]bool // lead id + "\x00" + message id
	decisions       map[string]*core.ActionDecision
	feedback        []*core.FeedbackSample
	logger          *zap.Logger
}

// NewMemoryStore creates a new in-memory state store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		threads:         make(map[string]*core.Thread),
		messageIndex:    make(map[string]string),
		contentIndex:    make(map[string]map[string]bool),
		processed:       make(map[string]bool),
		classifications: make(map[string]*core.ClassificationResult),
		attributions:    make(map[string]*core.AttributionRecord),
		scores:          make(map[string]*core.LeadScore),
		scoreEvents:     make(map[string]bool),
		decisions:       make(map[string]*core.ActionDecision),
		logger:          logger,
	}
}

// clone deep-copies a record through JSON so callers never share state with
// the store's own maps
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return v
	}
	return out
}

// GetThread retrieves a thread by key
func (s *MemoryStore) GetThread(ctx context.Context, key string) (*core.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(thread), nil
}

// PutThread stores or replaces a thread
func (s *MemoryStore) PutThread(ctx context.Context, thread *core.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[thread.Key] = clone(thread)
	return nil
}

// ThreadKeyByMessageID resolves the thread that ingested a message id
func (s *MemoryStore) ThreadKeyByMessageID(ctx context.Context, messageID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.messageIndex[messageID]
	if !ok {
		return "", core.ErrNotFound
	}
	return key, nil
}

// SeenMessage reports whether a message id has already been ingested
func (s *MemoryStore) SeenMessage(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.messageIndex[messageID]
	return ok, nil
}

// SeenContent reports whether a content hash was already seen in a thread
func (s *MemoryStore) SeenContent(ctx context.Context, threadKey, contentHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes, ok := s.contentIndex[threadKey]
	if !ok {
		return false, nil
	}
	return hashes[contentHash], nil
}

// MarkSeen records a message id and its content hash in the dedup index
func (s *MemoryStore) MarkSeen(ctx context.Context, messageID, threadKey, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messageIndex[messageID] = threadKey
	hashes, ok := s.contentIndex[threadKey]
	if !ok {
		hashes = make(map[string]bool)
		s.contentIndex[threadKey] = hashes
	}
	hashes[contentHash] = true
	return nil
}

// IsProcessed reports whether a message id was fully processed
func (s *MemoryStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.processed[messageID], nil
}

// MarkProcessed sets the fully-processed marker for a message id
func (s *MemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[messageID] = true
	return nil
}

// PutClassification stores the classification for a message
func (s *MemoryStore) PutClassification(ctx context.Context, result *core.ClassificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.classifications[result.MessageID] = clone(result)
	return nil
}

// GetClassification retrieves a stored classification
func (s *MemoryStore) GetClassification(ctx context.Context, messageID string) (*core.ClassificationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.classifications[messageID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(result), nil
}

// GetAttribution retrieves the attribution for a thread
func (s *MemoryStore) GetAttribution(ctx context.Context, threadKey string) (*core.AttributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.attributions[threadKey]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(record), nil
}

// PutAttribution stores or replaces the attribution record for a thread
func (s *MemoryStore) PutAttribution(ctx context.Context, record *core.AttributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributions[record.ThreadKey] = clone(record)
	return nil
}

// GetScore retrieves the lead score record
func (s *MemoryStore) GetScore(ctx context.Context, leadID string) (*core.LeadScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[leadID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(score), nil
}

// UpdateScore replaces the lead score record, at most once per (lead, message)
func (s *MemoryStore) UpdateScore(ctx context.Context, score *core.LeadScore, messageID string) (*core.LeadScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventKey := score.LeadID + "\x00" + messageID
	if s.scoreEvents[eventKey] {
		if stored, ok := s.scores[score.LeadID]; ok {
			return clone(stored), nil
		}
		return clone(score), nil
	}

	s.scoreEvents[eventKey] = true
	s.scores[score.LeadID] = clone(score)
	return clone(score), nil
}

// PutDecision stores the decision for a message
func (s *MemoryStore) PutDecision(ctx context.Context, decision *core.ActionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[decision.MessageID] = clone(decision)
	return nil
}

// GetDecision retrieves a stored decision
func (s *MemoryStore) GetDecision(ctx context.Context, messageID string) (*core.ActionDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decision, ok := s.decisions[messageID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(decision), nil
}

// AppendFeedback appends a calibration sample to the feedback log
func (s *MemoryStore) AppendFeedback(ctx context.Context, sample *core.FeedbackSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback = append(s.feedback, clone(sample))
	return nil
}

// ListFeedback returns up to limit most recent calibration samples
func (s *MemoryStore) ListFeedback(ctx context.Context, limit int) ([]*core.FeedbackSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.feedback) {
		limit = len(s.feedback)
	}

	// Most recent first
	samples := make([]*core.FeedbackSample, 0, limit)
	for i := len(s.feedback) - 1; i >= len(s.feedback)-limit; i-- {
		samples = append(samples, clone(s.feedback[i]))
	}
	return samples, nil
}

// CleanupThreads removes threads with no activity since the cutoff, along
// with their dedup index entries
func (s *MemoryStore) CleanupThreads(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, thread := range s.threads {
		if !thread.LastAt.Before(olderThan) {
			continue
		}
		delete(s.threads, key)
		delete(s.contentIndex, key)
		for id, tk := range s.messageIndex {
			if tk == key {
				delete(s.messageIndex, id)
			}
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up stale threads", zap.Int("removed", removed))
	}
	return removed, nil
}
