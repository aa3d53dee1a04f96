package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CalibrationParams weight the thread-history signals applied on top of the
// raw provider confidence. Recomputed in batch from confirmed outcomes.
type CalibrationParams struct {
	// ConsistencyBonus is added per prior message carrying the same label
	ConsistencyBonus float64
	// FlipPenalty is subtracted per label transition in the thread history
	FlipPenalty float64
}

// ClassifierConfig holds the classifier tuning knobs
type ClassifierConfig struct {
	ContextSize        int           // prior messages in the context window
	InferTimeout       time.Duration // bound on one capability call
	FallbackConfidence float64       // used when no prior label exists
	MinSamples         int           // samples required before recalibration
	Defaults           CalibrationParams
}

const (
	minEffectiveConfidence = 0.05
	maxEffectiveConfidence = 0.99
	maxFeedbackWindow      = 1000
)

// ContextClassifier wraps the external inference capability with the
// calibration and fallback layer. Classification is total: a capability
// failure never propagates past this component.
type ContextClassifier struct {
	backend IntentClassifier
	store   StateRepository
	logger  *zap.Logger
	cfg     ClassifierConfig

	mu     sync.RWMutex
	params CalibrationParams
}

// NewContextClassifier creates a new context-aware classifier
func NewContextClassifier(
	backend IntentClassifier,
	store StateRepository,
	cfg ClassifierConfig,
	logger *zap.Logger,
) *ContextClassifier {
	return &ContextClassifier{
		backend: backend,
		store:   store,
		logger:  logger,
		cfg:     cfg,
		params:  cfg.Defaults,
	}
}

// Params returns the calibration parameters currently in effect
func (c *ContextClassifier) Params() CalibrationParams {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// Classify assigns an intent label to the message given its thread history.
// It never returns an error: capability failures resolve via the fallback
// policy, so every well-formed message gets a result.
func (c *ContextClassifier) Classify(ctx context.Context, msg *Message, thread *Thread) *ClassificationResult {
	window := c.contextWindow(msg, thread)

	inferCtx, cancel := context.WithTimeout(ctx, c.cfg.InferTimeout)
	defer cancel()

	raw, err := c.backend.Infer(inferCtx, &InferenceRequest{
		Sender:  msg.Sender,
		Subject: msg.Subject,
		Body:    msg.Body,
		Context: window,
		Labels:  AllLabels,
	})
	if err != nil || raw == nil || !raw.Label.Valid() {
		if err != nil {
			c.logger.Warn("Inference capability failed, using fallback",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		} else {
			c.logger.Warn("Inference returned invalid label, using fallback",
				zap.String("message_id", msg.ID))
		}
		return c.fallback(msg, thread, window)
	}

	effective, consistent, flips := c.calibrate(raw.Label, raw.Confidence, window)
	if effective != raw.Confidence {
		c.logger.Debug("Calibrated confidence",
			zap.String("message_id", msg.ID),
			zap.Float64("raw", raw.Confidence),
			zap.Float64("effective", effective),
			zap.Int("consistent_priors", consistent),
			zap.Int("flips", flips))
	}

	return &ClassificationResult{
		MessageID:     msg.ID,
		ThreadKey:     thread.Key,
		Label:         raw.Label,
		Confidence:    effective,
		RawConfidence: raw.Confidence,
		Context:       window,
		Model:         raw.Model,
		Reasoning:     raw.Reasoning,
		ClassifiedAt:  time.Now().UTC(),
	}
}

// contextWindow collects the prior N non-duplicate, non-spam classified
// messages of the thread, most recent first
func (c *ContextClassifier) contextWindow(msg *Message, thread *Thread) []ContextEntry {
	var window []ContextEntry
	for i := len(thread.Messages) - 1; i >= 0 && len(window) < c.cfg.ContextSize; i-- {
		tm := thread.Messages[i]
		if tm.ID == msg.ID || tm.Duplicate || tm.Spam || tm.Label == "" {
			continue
		}
		if tm.ReceivedAt.After(msg.ReceivedAt) {
			continue
		}
		window = append(window, ContextEntry{
			MessageID:  tm.ID,
			Sender:     tm.Sender,
			Body:       tm.Body,
			Label:      tm.Label,
			ReceivedAt: tm.ReceivedAt,
		})
	}
	return window
}

// calibrate adjusts the raw confidence by the thread-history signals: prior
// agreement with the current label raises it, label flip-flops lower it
func (c *ContextClassifier) calibrate(label Label, raw float64, window []ContextEntry) (float64, int, int) {
	consistent, flips := historySignals(label, window)

	params := c.Params()
	effective := raw + params.ConsistencyBonus*float64(consistent) - params.FlipPenalty*float64(flips)
	return clamp(effective, minEffectiveConfidence, maxEffectiveConfidence), consistent, flips
}

// historySignals counts priors agreeing with the label and label transitions
// across the chronological sequence including the current label
func historySignals(label Label, window []ContextEntry) (consistent, flips int) {
	for _, entry := range window {
		if entry.Label == label {
			consistent++
		}
	}

	// window is most recent first; walk oldest to newest, then the current label
	var prev Label
	for i := len(window) - 1; i >= 0; i-- {
		if prev != "" && window[i].Label != prev {
			flips++
		}
		prev = window[i].Label
	}
	if prev != "" && label != prev {
		flips++
	}
	return consistent, flips
}

// fallback returns the most recent prior label at half its recorded
// confidence, or MaybeInterested at the configured floor when the thread has
// no prior label
func (c *ContextClassifier) fallback(msg *Message, thread *Thread, window []ContextEntry) *ClassificationResult {
	result := &ClassificationResult{
		MessageID:    msg.ID,
		ThreadKey:    thread.Key,
		Label:        LabelMaybeInterested,
		Confidence:   c.cfg.FallbackConfidence,
		Context:      window,
		Model:        "fallback",
		Reasoning:    "inference unavailable; no prior label in thread",
		Fallback:     true,
		ClassifiedAt: time.Now().UTC(),
	}

	for i := len(thread.Messages) - 1; i >= 0; i-- {
		tm := thread.Messages[i]
		if tm.ID == msg.ID || tm.Duplicate || tm.Spam || tm.Label == "" {
			continue
		}
		result.Label = tm.Label
		result.Confidence = clamp(tm.Confidence/2, minEffectiveConfidence, maxEffectiveConfidence)
		result.Reasoning = fmt.Sprintf("inference unavailable; carried prior label from %s", tm.ID)
		break
	}

	return result
}

// RecordOutcome is the feedback write path: it joins a human-confirmed label
// with the stored classification into an append-only calibration sample.
// Calibration parameters are only changed by Recalibrate, never here.
func (c *ContextClassifier) RecordOutcome(ctx context.Context, messageID string, confirmed Label) error {
	if !confirmed.Valid() {
		return fmt.Errorf("unknown label %q", confirmed)
	}

	cls, err := c.store.GetClassification(ctx, messageID)
	if err != nil {
		return fmt.Errorf("lookup classification for feedback: %w", err)
	}

	consistent, flips := historySignals(cls.Label, cls.Context)
	sample := &FeedbackSample{
		MessageID:        messageID,
		Predicted:        cls.Label,
		Confirmed:        confirmed,
		Confidence:       cls.Confidence,
		ConsistentPriors: consistent,
		Flips:            flips,
		RecordedAt:       time.Now().UTC(),
	}
	if err := c.store.AppendFeedback(ctx, sample); err != nil {
		return fmt.Errorf("append feedback sample: %w", err)
	}

	c.logger.Info("Recorded confirmed outcome",
		zap.String("message_id", messageID),
		zap.String("predicted", string(cls.Label)),
		zap.String("confirmed", string(confirmed)))
	return nil
}

// Recalibrate recomputes the calibration parameters from the accumulated
// sample log and swaps them atomically. It refuses to act on fewer than the
// configured minimum so a handful of noisy samples cannot move the weights.
func (c *ContextClassifier) Recalibrate(ctx context.Context) error {
	samples, err := c.store.ListFeedback(ctx, maxFeedbackWindow)
	if err != nil {
		return fmt.Errorf("list feedback samples: %w", err)
	}
	if len(samples) < c.cfg.MinSamples {
		c.logger.Debug("Skipping recalibration, not enough samples",
			zap.Int("samples", len(samples)),
			zap.Int("required", c.cfg.MinSamples))
		return nil
	}

	next := c.Params()

	if acc, n := accuracyWhere(samples, func(s *FeedbackSample) bool { return s.Flips > 0 }); n > 0 {
		// The less reliable flip-context predictions turn out to be, the
		// harder a flip should cut effective confidence.
		next.FlipPenalty = clamp((1-acc)*0.4, 0.05, 0.4)
	}
	if acc, n := accuracyWhere(samples, func(s *FeedbackSample) bool { return s.ConsistentPriors > 0 }); n > 0 {
		next.ConsistencyBonus = clamp((acc-0.5)*0.1, 0, 0.05)
	}

	c.mu.Lock()
	prev := c.params
	c.params = next
	c.mu.Unlock()

	c.logger.Info("Recalibrated classifier",
		zap.Int("samples", len(samples)),
		zap.Float64("flip_penalty_before", prev.FlipPenalty),
		zap.Float64("flip_penalty_after", next.FlipPenalty),
		zap.Float64("consistency_bonus_before", prev.ConsistencyBonus),
		zap.Float64("consistency_bonus_after", next.ConsistencyBonus))
	return nil
}

func accuracyWhere(samples []*FeedbackSample, match func(*FeedbackSample) bool) (float64, int) {
	var correct, total int
	for _, s := range samples {
		if !match(s) {
			continue
		}
		total++
		if s.Correct() {
			correct++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(correct) / float64(total), total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
