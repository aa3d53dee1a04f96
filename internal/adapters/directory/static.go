package directory

import (
	"context"
	"strings"

	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// StaticDirectory is a configuration-backed implementation of the
// CampaignDirectory interface. The catalog is loaded once at startup; a CRM
// integration would replace this adapter wholesale.
type StaticDirectory struct {
	campaigns  map[string]*core.Campaign // by id
	byTracking map[string]*core.Campaign
	byEmail    map[string]*core.Lead
	logger     *zap.Logger
}

// NewStaticDirectory creates a directory from the configured catalog
func NewStaticDirectory(dir config.DirectoryConfig, logger *zap.Logger) *StaticDirectory {
	d := &StaticDirectory{
		campaigns:  make(map[string]*core.Campaign),
		byTracking: make(map[string]*core.Campaign),
		byEmail:    make(map[string]*core.Lead),
		logger:     logger,
	}

	for _, entry := range dir.Campaigns {
		campaign := &core.Campaign{
			ID:         entry.ID,
			Name:       entry.Name,
			TrackingID: entry.TrackingID,
			Subjects:   entry.Subjects,
			Active:     entry.Active,
		}
		d.campaigns[campaign.ID] = campaign
		if campaign.TrackingID != "" {
			d.byTracking[campaign.TrackingID] = campaign
		}
	}

	for _, entry := range dir.Leads {
		lead := &core.Lead{
			ID:          entry.ID,
			Email:       strings.ToLower(entry.Email),
			CampaignIDs: entry.CampaignIDs,
		}
		d.byEmail[lead.Email] = lead
	}

	logger.Info("Loaded campaign directory",
		zap.Int("campaigns", len(d.campaigns)),
		zap.Int("leads", len(d.byEmail)))

	return d
}

// CampaignByTracking resolves an exact tracking identifier
func (d *StaticDirectory) CampaignByTracking(ctx context.Context, token string) (*core.Campaign, error) {
	campaign, ok := d.byTracking[token]
	if !ok {
		return nil, core.ErrNotFound
	}
	return campaign, nil
}

// LeadByEmail resolves a sender address to a known lead
func (d *StaticDirectory) LeadByEmail(ctx context.Context, email string) (*core.Lead, error) {
	lead, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return lead, nil
}

// ActiveCampaigns lists campaigns currently sending
func (d *StaticDirectory) ActiveCampaigns(ctx context.Context) ([]*core.Campaign, error) {
	var active []*core.Campaign
	for _, campaign := range d.campaigns {
		if campaign.Active {
			active = append(active, campaign)
		}
	}
	return active, nil
}
