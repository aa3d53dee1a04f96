package sink

import (
	"context"

	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// LogSink is the default DecisionSink. It emits each decision as a
// structured log line for downstream collection; queue-backed sinks slot in
// behind the same interface.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new logging decision sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish emits one decision
func (s *LogSink) Publish(ctx context.Context, decision *core.ActionDecision) error {
	actions := make([]string, 0, len(decision.Actions))
	for _, a := range decision.Actions {
		actions = append(actions, string(a))
	}

	fields := []zap.Field{
		zap.String("message_id", decision.MessageID),
		zap.Strings("actions", actions),
		zap.String("label", string(decision.Classification.Label)),
		zap.Float64("confidence", decision.Classification.Confidence),
		zap.Bool("fallback", decision.Classification.Fallback),
		zap.String("campaign_id", decision.Attribution.CampaignID),
		zap.String("lead_id", decision.Attribution.LeadID),
		zap.String("match_reason", string(decision.Attribution.Reason)),
	}
	if decision.Score.LeadID != "" {
		fields = append(fields, zap.Float64("lead_score", decision.Score.Score))
	}

	s.logger.Info("Decision", fields...)
	return nil
}
