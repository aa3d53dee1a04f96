package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-memory StateRepository for the core tests. The store
// adapter package depends on this one, so the tests carry their own fake.
type fakeStore struct {
	mu              sync.Mutex
	threads         map[string]*Thread
	messageIndex    map[string]string
	contentIndex    map[string]map[string]bool
	processed       map[string]bool
	classifications map[string]*ClassificationResult
	attributions    map[string]*AttributionRecord
	scores          map[string]*LeadScore
	scoreEvents     map[string]bool
	decisions       map[string]*ActionDecision
	feedback        []*FeedbackSample
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads:         make(map[string]*Thread),
		messageIndex:    make(map[string]string),
		contentIndex:    make(map[string]map[string]bool),
		processed:       make(map[string]bool),
		classifications: make(map[string]*ClassificationResult),
		attributions:    make(map[string]*AttributionRecord),
		scores:          make(map[string]*LeadScore),
		scoreEvents:     make(map[string]bool),
		decisions:       make(map[string]*ActionDecision),
	}
}

func (s *fakeStore) GetThread(ctx context.Context, key string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[key]
	if !ok {
		return nil, ErrNotFound
	}
	return thread, nil
}

func (s *fakeStore) PutThread(ctx context.Context, thread *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.Key] = thread
	return nil
}

func (s *fakeStore) ThreadKeyByMessageID(ctx context.Context, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.messageIndex[messageID]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

func (s *fakeStore) SeenMessage(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.messageIndex[messageID]
	return ok, nil
}

func (s *fakeStore) SeenContent(ctx context.Context, threadKey, contentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentIndex[threadKey][contentHash], nil
}

func (s *fakeStore) MarkSeen(ctx context.Context, messageID, threadKey, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageIndex[messageID] = threadKey
	if s.contentIndex[threadKey] == nil {
		s.contentIndex[threadKey] = make(map[string]bool)
	}
	s.contentIndex[threadKey][contentHash] = true
	return nil
}

func (s *fakeStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[messageID], nil
}

func (s *fakeStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[messageID] = true
	return nil
}

func (s *fakeStore) PutClassification(ctx context.Context, result *ClassificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications[result.MessageID] = result
	return nil
}

func (s *fakeStore) GetClassification(ctx context.Context, messageID string) (*ClassificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.classifications[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *fakeStore) GetAttribution(ctx context.Context, threadKey string) (*AttributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.attributions[threadKey]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) PutAttribution(ctx context.Context, record *AttributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributions[record.ThreadKey] = record
	return nil
}

func (s *fakeStore) GetScore(ctx context.Context, leadID string) (*LeadScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[leadID]
	if !ok {
		return nil, ErrNotFound
	}
	return score, nil
}

func (s *fakeStore) UpdateScore(ctx context.Context, score *LeadScore, messageID string) (*LeadScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventKey := score.LeadID + "\x00" + messageID
	if s.scoreEvents[eventKey] {
		if stored, ok := s.scores[score.LeadID]; ok {
			return stored, nil
		}
		return score, nil
	}
	s.scoreEvents[eventKey] = true
	s.scores[score.LeadID] = score
	return score, nil
}

func (s *fakeStore) PutDecision(ctx context.Context, decision *ActionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decision.MessageID] = decision
	return nil
}

func (s *fakeStore) GetDecision(ctx context.Context, messageID string) (*ActionDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return decision, nil
}

func (s *fakeStore) AppendFeedback(ctx context.Context, sample *FeedbackSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, sample)
	return nil
}

func (s *fakeStore) ListFeedback(ctx context.Context, limit int) ([]*FeedbackSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.feedback) {
		limit = len(s.feedback)
	}
	samples := make([]*FeedbackSample, 0, limit)
	for i := len(s.feedback) - 1; i >= len(s.feedback)-limit; i-- {
		samples = append(samples, s.feedback[i])
	}
	return samples, nil
}

func (s *fakeStore) CleanupThreads(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, thread := range s.threads {
		if thread.LastAt.Before(olderThan) {
			delete(s.threads, key)
			delete(s.contentIndex, key)
			removed++
		}
	}
	return removed, nil
}

// flakyStore fails a scripted number of decision writes, simulating a crash
// after the dedup index was persisted but before the processed marker.
type flakyStore struct {
	*fakeStore
	flakyMu          sync.Mutex
	failPutDecisions int
}

func (s *flakyStore) PutDecision(ctx context.Context, decision *ActionDecision) error {
	s.flakyMu.Lock()
	fail := s.failPutDecisions > 0
	if fail {
		s.failPutDecisions--
	}
	s.flakyMu.Unlock()
	if fail {
		return errors.New("write refused")
	}
	return s.fakeStore.PutDecision(ctx, decision)
}

// stubBackend is a scriptable IntentClassifier
type stubBackend struct {
	mu     sync.Mutex
	result *InferenceResult
	err    error
	calls  int
	lastIn *InferenceRequest
}

func (b *stubBackend) Infer(ctx context.Context, req *InferenceRequest) (*InferenceResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.lastIn = req
	return b.result, b.err
}

func (b *stubBackend) Healthy(ctx context.Context) error { return nil }

// stubDirectory serves a fixed campaign/lead catalog
type stubDirectory struct {
	byTracking map[string]*Campaign
	byEmail    map[string]*Lead
	active     []*Campaign
}

func (d *stubDirectory) CampaignByTracking(ctx context.Context, token string) (*Campaign, error) {
	if c, ok := d.byTracking[token]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (d *stubDirectory) LeadByEmail(ctx context.Context, email string) (*Lead, error) {
	if l, ok := d.byEmail[email]; ok {
		return l, nil
	}
	return nil, ErrNotFound
}

func (d *stubDirectory) ActiveCampaigns(ctx context.Context) ([]*Campaign, error) {
	return d.active, nil
}

// stubSink records published decisions
type stubSink struct {
	mu        sync.Mutex
	published []*ActionDecision
	err       error
}

func (s *stubSink) Publish(ctx context.Context, decision *ActionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, decision)
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}
