package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig holds the batch processing knobs
type PipelineConfig struct {
	Workers int // concurrent thread groups per batch
}

// Pipeline runs the full decision core over a batch of inbound messages:
// resolve, classify, attribute, decide, emit. Messages in unrelated threads
// run in parallel; messages within one thread run in chronological order
// under a per-thread-key mutex.
type Pipeline struct {
	resolver    *ThreadResolver
	classifier  *ContextClassifier
	attribution *AttributionEngine
	store       StateRepository
	sink        DecisionSink
	policy      RoutingPolicy
	stats       *Stats
	logger      *zap.Logger
	cfg         PipelineConfig
	locks       keyedMutex
}

// NewPipeline creates a new processing pipeline
func NewPipeline(
	resolver *ThreadResolver,
	classifier *ContextClassifier,
	attribution *AttributionEngine,
	store StateRepository,
	sink DecisionSink,
	policy RoutingPolicy,
	stats *Stats,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Pipeline{
		resolver:    resolver,
		classifier:  classifier,
		attribution: attribution,
		store:       store,
		sink:        sink,
		policy:      policy,
		stats:       stats,
		logger:      logger,
		cfg:         cfg,
	}
}

// outcomeKind classifies what happened to one message in a batch
type outcomeKind int

const (
	outcomeDecided outcomeKind = iota
	outcomeReplayed
	outcomeDuplicate
	outcomeSpam
	outcomeSkipped
	outcomeFailed
)

// ProcessBatch processes one batch of inbound messages. Per-message failures
// are isolated and tallied in the summary; only a fatal store-level
// corruption aborts the invocation.
func (p *Pipeline) ProcessBatch(ctx context.Context, msgs []*Message) (*BatchSummary, error) {
	summary := &BatchSummary{
		BatchID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	valid := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil || msg.ID == "" {
			summary.Skipped++
			p.stats.recordSkipped()
			continue
		}
		valid = append(valid, msg)
	}

	groups := p.groupByThread(ctx, valid)

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		fatal error
	)
	sem := make(chan struct{}, p.cfg.Workers)

	for _, group := range groups {
		group := group
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			for _, msg := range group {
				decision, kind, err := p.processOne(ctx, msg)

				mu.Lock()
				switch kind {
				case outcomeDecided:
					summary.Processed++
					summary.Decisions = append(summary.Decisions, decision)
				case outcomeReplayed:
					summary.Replayed++
					summary.Decisions = append(summary.Decisions, decision)
				case outcomeDuplicate:
					summary.Duplicates++
				case outcomeSpam:
					summary.Spam++
				case outcomeSkipped:
					summary.Skipped++
				case outcomeFailed:
					summary.Failed++
				}
				if err != nil {
					var corruption *StateCorruptionError
					if errors.As(err, &corruption) && corruption.Fatal() && fatal == nil {
						fatal = err
					}
				}
				mu.Unlock()

				if err != nil {
					p.logger.Error("Message processing failed",
						zap.String("batch", summary.BatchID),
						zap.String("message_id", msg.ID),
						zap.Error(err))
				}
			}
		}()
	}
	wg.Wait()

	summary.FinishedAt = time.Now().UTC()
	p.logger.Info("Batch complete",
		zap.String("batch", summary.BatchID),
		zap.Int("processed", summary.Processed),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("spam", summary.Spam),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("replayed", summary.Replayed))

	if fatal != nil {
		return summary, fatal
	}
	return summary, nil
}

// groupByThread buckets messages by their resolved thread key and sorts each
// bucket chronologically, so intra-thread order holds regardless of delivery
// order while unrelated threads stay independent.
func (p *Pipeline) groupByThread(ctx context.Context, msgs []*Message) [][]*Message {
	buckets := make(map[string][]*Message)
	for _, msg := range msgs {
		key, err := p.resolver.KeyFor(ctx, msg)
		if err != nil {
			// Malformed or unresolvable messages get singleton groups; the
			// per-message path reports them properly.
			key = "invalid-" + msg.ID
		}
		buckets[key] = append(buckets[key], msg)
	}

	groups := make([][]*Message, 0, len(buckets))
	for _, group := range buckets {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ReceivedAt.Before(group[j].ReceivedAt)
		})
		groups = append(groups, group)
	}
	return groups
}

// processOne runs the decision core for a single message. Reprocessing a
// fully processed message id returns the stored decision unchanged; an id
// that was ingested but never reached the processed marker resumes from the
// thread state persisted on the first attempt.
func (p *Pipeline) processOne(ctx context.Context, msg *Message) (*ActionDecision, outcomeKind, error) {
	if msg == nil || msg.ID == "" {
		p.stats.recordSkipped()
		return nil, outcomeSkipped, &MalformedInputError{Reason: "missing message id"}
	}

	processed, err := p.store.IsProcessed(ctx, msg.ID)
	if err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, fmt.Errorf("processed lookup: %w", err)
	}
	if processed {
		decision, err := p.store.GetDecision(ctx, msg.ID)
		if err != nil {
			p.stats.recordFailed()
			return nil, outcomeFailed, &StateCorruptionError{MessageID: msg.ID, Detail: "processed but decision missing"}
		}
		p.stats.recordReplayed()
		return decision, outcomeReplayed, nil
	}

	key, err := p.resolver.KeyFor(ctx, msg)
	if err != nil {
		if IsMalformed(err) {
			p.stats.recordSkipped()
			p.logger.Warn("Skipping malformed message", zap.Error(err))
			return nil, outcomeSkipped, nil
		}
		p.stats.recordFailed()
		return nil, outcomeFailed, err
	}

	unlock := p.locks.lock(key)
	defer unlock()

	thread, duplicate, spam, err := p.resolver.Resolve(ctx, msg)
	if err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, err
	}
	if duplicate {
		p.stats.recordDuplicate()
		return nil, outcomeDuplicate, nil
	}
	if spam {
		p.stats.recordSpam()
		return nil, outcomeSpam, nil
	}

	cls := p.classifier.Classify(ctx, msg, thread)
	if err := p.store.PutClassification(ctx, cls); err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, fmt.Errorf("store classification: %w", err)
	}
	if tm := thread.Message(msg.ID); tm != nil {
		tm.Label = cls.Label
		tm.Confidence = cls.Confidence
		if err := p.store.PutThread(ctx, thread); err != nil {
			p.stats.recordFailed()
			return nil, outcomeFailed, fmt.Errorf("store thread labels: %w", err)
		}
	}

	attr, score, err := p.attribution.Attribute(ctx, thread, msg, cls)
	if err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, err
	}

	decision := Decide(cls, attr, score, p.policy)
	decision.DecidedAt = time.Now().UTC()

	if err := p.store.PutDecision(ctx, decision); err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, fmt.Errorf("store decision: %w", err)
	}
	if err := p.store.MarkProcessed(ctx, msg.ID); err != nil {
		p.stats.recordFailed()
		return nil, outcomeFailed, fmt.Errorf("mark processed: %w", err)
	}

	if err := p.sink.Publish(ctx, decision); err != nil {
		// Delivery to collaborators is at-least-once via replay; a sink
		// failure must not fail the already-persisted decision.
		p.logger.Error("Decision sink publish failed",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}

	p.stats.recordDecision(decision)
	return decision, outcomeDecided, nil
}

// RecordOutcome is the external feedback write path (§learning loop)
func (p *Pipeline) RecordOutcome(ctx context.Context, messageID string, confirmed Label) error {
	return p.classifier.RecordOutcome(ctx, messageID, confirmed)
}

// Recalibrate triggers a batch recomputation of the calibration parameters
func (p *Pipeline) Recalibrate(ctx context.Context) error {
	return p.classifier.Recalibrate(ctx)
}

// CleanupThreads drops threads idle since the cutoff
func (p *Pipeline) CleanupThreads(ctx context.Context, olderThan time.Time) (int, error) {
	return p.store.CleanupThreads(ctx, olderThan)
}

// Stats returns a read-only snapshot of the processing counters
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// keyedMutex is an arena of per-thread-key locks so unrelated threads
// proceed concurrently while one thread's state is serialized
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
