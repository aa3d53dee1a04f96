package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	llm := cfg.GetLLM()
	assert.Equal(t, "openai", llm.Provider)

	classifier, err := cfg.GetClassifier()
	require.NoError(t, err)
	assert.Equal(t, 5, classifier.ContextSize)
	assert.Equal(t, 10*time.Second, classifier.InferTimeout)
	assert.Equal(t, 0.3, classifier.FallbackConfidence)
	assert.Equal(t, 0.02, classifier.ConsistencyBonus)
	assert.Equal(t, 0.2, classifier.FlipPenalty)
	assert.Equal(t, 25, classifier.MinSamples)
	assert.Equal(t, time.Hour, classifier.RecalibrateEvery)

	scoring, err := cfg.GetScoring()
	require.NoError(t, err)
	assert.Equal(t, 15.0, scoring.InterestedWeight)
	assert.Equal(t, 5.0, scoring.MaybeWeight)
	assert.Equal(t, -10.0, scoring.NotInterestedWeight)
	assert.Equal(t, 720*time.Hour, scoring.HalfLife)

	routing := cfg.GetRouting()
	assert.Equal(t, 0.8, routing.ThresholdHigh)
	assert.Equal(t, 0.6, routing.ThresholdMid)

	attribution := cfg.GetAttribution()
	assert.Equal(t, "X-Campaign-ID", attribution.TrackingHeader)
	assert.Equal(t, 10, attribution.MaxEditDistance)

	store := cfg.GetStore()
	assert.Equal(t, "memory", store.Type)

	ingest, err := cfg.GetIngest()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:10025", ingest.ListenAddress)
	assert.Equal(t, int64(10*1024*1024), ingest.MaxMessageBytes)
}

func TestGetDuration(t *testing.T) {
	v := NewEmptyViper()
	v.Set("pipeline.thread_ttl", "36h")
	cfg := NewFromViper(v)

	d, err := cfg.GetDuration("pipeline.thread_ttl")
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, d)

	v.Set("pipeline.thread_ttl", "not a duration")
	_, err = cfg.GetDuration("pipeline.thread_ttl")
	assert.Error(t, err)
}

func TestGetDirectory(t *testing.T) {
	v := NewEmptyViper()
	v.Set("directory.campaigns", []map[string]interface{}{
		{
			"id":          "camp-1",
			"name":        "Spring Outbound",
			"tracking_id": "spring24",
			"subjects":    []string{"Your spring offer inside"},
			"active":      true,
		},
	})
	v.Set("directory.leads", []map[string]interface{}{
		{
			"id":           "lead-1",
			"email":        "alice@corp.example",
			"campaign_ids": []string{"camp-1"},
		},
	})
	cfg := NewFromViper(v)

	directory, err := cfg.GetDirectory()
	require.NoError(t, err)
	require.Len(t, directory.Campaigns, 1)
	assert.Equal(t, "spring24", directory.Campaigns[0].TrackingID)
	assert.True(t, directory.Campaigns[0].Active)
	require.Len(t, directory.Leads, 1)
	assert.Equal(t, []string{"camp-1"}, directory.Leads[0].CampaignIDs)
}
