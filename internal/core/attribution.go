package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/utils"
)

// bodyTrackingRe matches campaign tracking tokens embedded in reply bodies,
// e.g. "[cid:spring-promo-24]" quoted back from the original send
var bodyTrackingRe = regexp.MustCompile(`\[cid:([A-Za-z0-9_-]+)\]`)

// Attribution match precedence; lower wins
const (
	precedenceTracking = 1
	precedenceSender   = 2
	precedenceFuzzy    = 3
	precedenceNone     = 4
)

// Match confidences per reason
const (
	trackingConfidence   = 0.95
	senderConfidence     = 0.75
	fuzzyBaseConfidence  = 0.5
	fuzzyFloorConfidence = 0.3
)

// ScoringConfig holds the lead scoring weights and bounds
type ScoringConfig struct {
	Weights  map[Label]float64
	Floor    float64
	Ceiling  float64
	HalfLife time.Duration // engagement decay half-life
}

// AttributionConfig holds the attribution matching knobs
type AttributionConfig struct {
	TrackingHeader  string // header carrying the campaign tracking id
	MaxEditDistance int    // bound for fuzzy subject matching
}

// AttributionEngine links threads to campaigns/leads and maintains the
// running lead score. It owns AttributionRecord and LeadScore exclusively.
type AttributionEngine struct {
	store     StateRepository
	directory CampaignDirectory
	text      *utils.TextProcessor
	logger    *zap.Logger
	scoring   ScoringConfig
	cfg       AttributionConfig
}

// NewAttributionEngine creates a new attribution and scoring engine
func NewAttributionEngine(
	store StateRepository,
	directory CampaignDirectory,
	text *utils.TextProcessor,
	scoring ScoringConfig,
	cfg AttributionConfig,
	logger *zap.Logger,
) *AttributionEngine {
	return &AttributionEngine{
		store:     store,
		directory: directory,
		text:      text,
		logger:    logger,
		scoring:   scoring,
		cfg:       cfg,
	}
}

// Attribute links the thread to a campaign and lead and applies the score
// update for the classified message. No match is not an error: the thread
// gets the sentinel unattributed record at confidence 0.
func (e *AttributionEngine) Attribute(
	ctx context.Context,
	thread *Thread,
	msg *Message,
	cls *ClassificationResult,
) (*AttributionRecord, *LeadScore, error) {
	candidate := e.match(ctx, thread, msg)
	record, err := e.reconcile(ctx, thread.Key, candidate)
	if err != nil {
		return nil, nil, err
	}

	score, err := e.applyScore(ctx, record, msg, cls)
	if err != nil {
		return nil, nil, err
	}
	return record, score, nil
}

// match evaluates the precedence ladder, first match wins
func (e *AttributionEngine) match(ctx context.Context, thread *Thread, msg *Message) *AttributionRecord {
	now := time.Now().UTC()

	if campaign, ok := e.matchTracking(ctx, msg); ok {
		return &AttributionRecord{
			ThreadKey:  thread.Key,
			CampaignID: campaign.ID,
			LeadID:     e.leadFor(ctx, msg.Sender),
			Confidence: trackingConfidence,
			Reason:     MatchTrackingID,
			Precedence: precedenceTracking,
			UpdatedAt:  now,
		}
	}

	if lead, err := e.directory.LeadByEmail(ctx, msg.Sender); err == nil {
		campaignID := UnattributedCampaign
		if len(lead.CampaignIDs) > 0 {
			campaignID = lead.CampaignIDs[0]
		}
		return &AttributionRecord{
			ThreadKey:  thread.Key,
			CampaignID: campaignID,
			LeadID:     lead.ID,
			Confidence: senderConfidence,
			Reason:     MatchSenderEmail,
			Precedence: precedenceSender,
			UpdatedAt:  now,
		}
	}

	if campaign, confidence, ok := e.matchFuzzySubject(ctx, thread); ok {
		return &AttributionRecord{
			ThreadKey:  thread.Key,
			CampaignID: campaign.ID,
			LeadID:     e.leadFor(ctx, msg.Sender),
			Confidence: confidence,
			Reason:     MatchFuzzySubject,
			Precedence: precedenceFuzzy,
			UpdatedAt:  now,
		}
	}

	return &AttributionRecord{
		ThreadKey:  thread.Key,
		CampaignID: UnattributedCampaign,
		Confidence: 0,
		Reason:     MatchNone,
		Precedence: precedenceNone,
		UpdatedAt:  now,
	}
}

func (e *AttributionEngine) matchTracking(ctx context.Context, msg *Message) (*Campaign, bool) {
	token := msg.Header(e.cfg.TrackingHeader)
	if token == "" {
		if m := bodyTrackingRe.FindStringSubmatch(msg.Body); m != nil {
			token = m[1]
		}
	}
	if token == "" {
		return nil, false
	}

	campaign, err := e.directory.CampaignByTracking(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Warn("Campaign directory lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return campaign, true
}

func (e *AttributionEngine) matchFuzzySubject(ctx context.Context, thread *Thread) (*Campaign, float64, bool) {
	campaigns, err := e.directory.ActiveCampaigns(ctx)
	if err != nil {
		e.logger.Warn("Active campaign listing failed", zap.Error(err))
		return nil, 0, false
	}

	best := e.cfg.MaxEditDistance + 1
	var bestCampaign *Campaign
	for _, campaign := range campaigns {
		for _, subject := range campaign.Subjects {
			d := levenshtein.ComputeDistance(thread.Subject, e.text.NormalizeSubject(subject))
			if d < best {
				best = d
				bestCampaign = campaign
			}
		}
	}
	if bestCampaign == nil || best > e.cfg.MaxEditDistance {
		return nil, 0, false
	}

	confidence := fuzzyBaseConfidence * (1 - float64(best)/float64(e.cfg.MaxEditDistance+1))
	if confidence < fuzzyFloorConfidence {
		confidence = fuzzyFloorConfidence
	}
	return bestCampaign, confidence, true
}

func (e *AttributionEngine) leadFor(ctx context.Context, sender string) string {
	lead, err := e.directory.LeadByEmail(ctx, sender)
	if err != nil {
		return ""
	}
	return lead.ID
}

// reconcile applies the revision rule: a stronger match (lower precedence
// number) replaces the stored record wholesale; anything else keeps the
// record already on file. Past score contributions are never moved.
func (e *AttributionEngine) reconcile(ctx context.Context, threadKey string, candidate *AttributionRecord) (*AttributionRecord, error) {
	existing, err := e.store.GetAttribution(ctx, threadKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load attribution: %w", err)
		}
		if err := e.store.PutAttribution(ctx, candidate); err != nil {
			return nil, fmt.Errorf("store attribution: %w", err)
		}
		return candidate, nil
	}

	if candidate.Precedence >= existing.Precedence {
		return existing, nil
	}

	e.logger.Info("Revised attribution with stronger match",
		zap.String("thread", threadKey),
		zap.String("was", string(existing.Reason)),
		zap.String("now", string(candidate.Reason)))
	if err := e.store.PutAttribution(ctx, candidate); err != nil {
		return nil, fmt.Errorf("store attribution: %w", err)
	}
	return candidate, nil
}

// applyScore updates the lead score for one classified message: the prior
// score decays by elapsed time since the last engagement, the label weight
// scaled by confidence is added, and the result is clamped to the configured
// bounds. Clamping is the resolution policy, not an error.
func (e *AttributionEngine) applyScore(
	ctx context.Context,
	record *AttributionRecord,
	msg *Message,
	cls *ClassificationResult,
) (*LeadScore, error) {
	if record.LeadID == "" {
		return &LeadScore{}, nil
	}

	current, err := e.store.GetScore(ctx, record.LeadID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load lead score: %w", err)
		}
		current = &LeadScore{LeadID: record.LeadID}
	}
	if current.Archived {
		e.logger.Debug("Lead archived, score untouched", zap.String("lead", record.LeadID))
		return current, nil
	}

	decayed := current.Score
	if !current.LastEngagedAt.IsZero() {
		elapsed := msg.ReceivedAt.Sub(current.LastEngagedAt)
		if elapsed > 0 {
			decayed *= math.Pow(0.5, elapsed.Hours()/e.scoring.HalfLife.Hours())
		}
	}

	delta := e.scoring.Weights[cls.Label] * cls.Confidence
	next := &LeadScore{
		LeadID:        record.LeadID,
		Score:         clamp(decayed+delta, e.scoring.Floor, e.scoring.Ceiling),
		LastEngagedAt: msg.ReceivedAt,
		UpdatedAt:     time.Now().UTC(),
	}

	stored, err := e.store.UpdateScore(ctx, next, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("update lead score: %w", err)
	}

	e.logger.Debug("Applied score update",
		zap.String("lead", record.LeadID),
		zap.String("label", string(cls.Label)),
		zap.Float64("delta", delta),
		zap.Float64("score", stored.Score))
	return stored, nil
}
