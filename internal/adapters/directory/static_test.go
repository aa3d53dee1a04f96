package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
)

func testCatalog() config.DirectoryConfig {
	return config.DirectoryConfig{
		Campaigns: []config.CampaignEntry{
			{
				ID:         "camp-1",
				Name:       "Spring Outbound",
				TrackingID: "spring24",
				Subjects:   []string{"Your spring offer inside"},
				Active:     true,
			},
			{
				ID:         "camp-2",
				Name:       "Retired Campaign",
				TrackingID: "old23",
				Active:     false,
			},
		},
		Leads: []config.LeadEntry{
			{ID: "lead-1", Email: "Alice@Corp.Example", CampaignIDs: []string{"camp-1"}},
		},
	}
}

func TestCampaignByTracking(t *testing.T) {
	d := NewStaticDirectory(testCatalog(), zap.NewNop())
	ctx := context.Background()

	campaign, err := d.CampaignByTracking(ctx, "spring24")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", campaign.ID)

	_, err = d.CampaignByTracking(ctx, "unknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLeadByEmailCaseInsensitive(t *testing.T) {
	d := NewStaticDirectory(testCatalog(), zap.NewNop())
	ctx := context.Background()

	lead, err := d.LeadByEmail(ctx, "ALICE@corp.example")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", lead.ID)

	_, err = d.LeadByEmail(ctx, "bob@other.example")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestActiveCampaigns(t *testing.T) {
	d := NewStaticDirectory(testCatalog(), zap.NewNop())

	active, err := d.ActiveCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "camp-1", active[0].ID)
}
