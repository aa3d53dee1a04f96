package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	policy := RoutingPolicy{ThresholdHigh: 0.8, ThresholdMid: 0.6}
	attributed := &AttributionRecord{CampaignID: "camp-1", Reason: MatchTrackingID}
	unattributed := &AttributionRecord{CampaignID: UnattributedCampaign, Reason: MatchNone}
	leadOnly := &AttributionRecord{CampaignID: UnattributedCampaign, LeadID: "lead-1", Reason: MatchSenderEmail}

	tests := []struct {
		name       string
		label      Label
		confidence float64
		attr       *AttributionRecord
		want       []Action
	}{
		{
			name:       "interested high confidence",
			label:      LabelInterested,
			confidence: 0.85,
			attr:       attributed,
			want:       []Action{ActionRespondInterested, ActionNotifyRep},
		},
		{
			name:       "interested at threshold",
			label:      LabelInterested,
			confidence: 0.8,
			attr:       attributed,
			want:       []Action{ActionRespondInterested, ActionNotifyRep},
		},
		{
			name:       "interested low confidence goes to human",
			label:      LabelInterested,
			confidence: 0.79,
			attr:       attributed,
			want:       []Action{ActionNotifyRep},
		},
		{
			name:       "maybe interested above mid",
			label:      LabelMaybeInterested,
			confidence: 0.65,
			attr:       attributed,
			want:       []Action{ActionRespondMaybe},
		},
		{
			name:       "maybe interested below mid",
			label:      LabelMaybeInterested,
			confidence: 0.5,
			attr:       attributed,
			want:       []Action{ActionNoAction},
		},
		{
			name:       "not interested attributed",
			label:      LabelNotInterested,
			confidence: 0.2,
			attr:       attributed,
			want:       []Action{ActionSuppressAndAcknowledge},
		},
		{
			name:       "not interested known lead without campaign still suppresses",
			label:      LabelNotInterested,
			confidence: 0.4,
			attr:       leadOnly,
			want:       []Action{ActionSuppressAndAcknowledge},
		},
		{
			name:       "not interested unattributed has no list to leave",
			label:      LabelNotInterested,
			confidence: 0.95,
			attr:       unattributed,
			want:       []Action{ActionNoAction},
		},
		{
			name:       "unknown label",
			label:      "Garbled",
			confidence: 0.9,
			attr:       attributed,
			want:       []Action{ActionNoAction},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := &ClassificationResult{MessageID: "m1", Label: tt.label, Confidence: tt.confidence}
			score := &LeadScore{LeadID: "lead-1", Score: 12}

			decision := Decide(cls, tt.attr, score, policy)
			assert.Equal(t, tt.want, decision.Actions)
			assert.Equal(t, "m1", decision.MessageID)
			assert.Equal(t, *cls, decision.Classification)
			assert.Equal(t, *tt.attr, decision.Attribution)
			assert.Equal(t, *score, decision.Score)

			// Deterministic on identical inputs
			again := Decide(cls, tt.attr, score, policy)
			again.DecidedAt = decision.DecidedAt
			assert.Equal(t, decision, again)
		})
	}
}

func TestHasAction(t *testing.T) {
	d := &ActionDecision{Actions: []Action{ActionNotifyRep}}
	assert.True(t, d.HasAction(ActionNotifyRep))
	assert.False(t, d.HasAction(ActionRespondMaybe))
}
