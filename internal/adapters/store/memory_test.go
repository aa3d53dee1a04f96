package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/core"
)

func TestMemoryStoreThreads(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	_, err := s.GetThread(ctx, "t-missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	thread := &core.Thread{
		Key:     "t-0123456789abcdef",
		Subject: "spring offer",
		Messages: []*core.ThreadMessage{
			{ID: "m1", Sender: "alice@corp.example", ReceivedAt: time.Now().UTC()},
		},
	}
	require.NoError(t, s.PutThread(ctx, thread))

	got, err := s.GetThread(ctx, thread.Key)
	require.NoError(t, err)
	assert.Equal(t, thread.Subject, got.Subject)
	require.Len(t, got.Messages, 1)

	// Callers never share state with the store
	got.Subject = "mutated"
	again, err := s.GetThread(ctx, thread.Key)
	require.NoError(t, err)
	assert.Equal(t, "spring offer", again.Subject)
}

func TestMemoryStoreDedupIndex(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	seen, err := s.SeenMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "m1", "t-1", "hash-a"))

	seen, err = s.SeenMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	key, err := s.ThreadKeyByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", key)

	_, err = s.ThreadKeyByMessageID(ctx, "m2")
	assert.ErrorIs(t, err, core.ErrNotFound)

	dup, err := s.SeenContent(ctx, "t-1", "hash-a")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = s.SeenContent(ctx, "t-2", "hash-a")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestMemoryStoreProcessedMarker(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	processed, err := s.IsProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, s.MarkProcessed(ctx, "m1"))

	processed, err = s.IsProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMemoryStoreRecords(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	_, err := s.GetClassification(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, s.PutClassification(ctx, &core.ClassificationResult{
		MessageID: "m1", Label: core.LabelInterested, Confidence: 0.9,
	}))
	cls, err := s.GetClassification(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.LabelInterested, cls.Label)

	_, err = s.GetAttribution(ctx, "t-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, s.PutAttribution(ctx, &core.AttributionRecord{
		ThreadKey: "t-1", CampaignID: "camp-1", Reason: core.MatchTrackingID,
	}))
	attr, err := s.GetAttribution(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", attr.CampaignID)

	_, err = s.GetDecision(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, s.PutDecision(ctx, &core.ActionDecision{
		MessageID: "m1", Actions: []core.Action{core.ActionNotifyRep},
	}))
	decision, err := s.GetDecision(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, decision.HasAction(core.ActionNotifyRep))
}

func TestMemoryStoreUpdateScoreOncePerMessage(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	first, err := s.UpdateScore(ctx, &core.LeadScore{LeadID: "lead-1", Score: 13.5}, "m1")
	require.NoError(t, err)
	assert.Equal(t, 13.5, first.Score)

	// Same message again: the stored record wins, the new value is dropped
	second, err := s.UpdateScore(ctx, &core.LeadScore{LeadID: "lead-1", Score: 27}, "m1")
	require.NoError(t, err)
	assert.Equal(t, 13.5, second.Score)

	// A different message applies normally
	third, err := s.UpdateScore(ctx, &core.LeadScore{LeadID: "lead-1", Score: 27}, "m2")
	require.NoError(t, err)
	assert.Equal(t, 27.0, third.Score)

	stored, err := s.GetScore(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 27.0, stored.Score)
}

func TestMemoryStoreFeedbackLog(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendFeedback(ctx, &core.FeedbackSample{
			MessageID: fmt.Sprintf("m%d", i),
			Predicted: core.LabelInterested,
			Confirmed: core.LabelInterested,
		}))
	}

	samples, err := s.ListFeedback(ctx, 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	// Most recent first
	assert.Equal(t, "m4", samples[0].MessageID)
	assert.Equal(t, "m2", samples[2].MessageID)

	all, err := s.ListFeedback(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStoreCleanupThreads(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	stale := &core.Thread{Key: "t-stale", LastAt: now.Add(-60 * 24 * time.Hour)}
	live := &core.Thread{Key: "t-live", LastAt: now}
	require.NoError(t, s.PutThread(ctx, stale))
	require.NoError(t, s.PutThread(ctx, live))
	require.NoError(t, s.MarkSeen(ctx, "m-old", "t-stale", "hash-old"))
	require.NoError(t, s.MarkSeen(ctx, "m-new", "t-live", "hash-new"))

	removed, err := s.CleanupThreads(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetThread(ctx, "t-stale")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetThread(ctx, "t-live")
	assert.NoError(t, err)

	// Dedup index entries of the removed thread are gone too
	seen, err := s.SeenMessage(ctx, "m-old")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = s.SeenMessage(ctx, "m-new")
	require.NoError(t, err)
	assert.True(t, seen)
}
