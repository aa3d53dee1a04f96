package factory

import (
	"fmt"

	"github.com/mikey/reply-triage/internal/adapters/directory"
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// DirectoryFactory creates campaign directories based on configuration
type DirectoryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDirectoryFactory creates a new directory factory
func NewDirectoryFactory(cfg *config.Config, logger *zap.Logger) *DirectoryFactory {
	return &DirectoryFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCampaignDirectory creates the campaign directory from configuration
func (f *DirectoryFactory) CreateCampaignDirectory() (core.CampaignDirectory, error) {
	dirCfg, err := f.cfg.GetDirectory()
	if err != nil {
		return nil, fmt.Errorf("invalid directory configuration: %w", err)
	}

	return directory.NewStaticDirectory(dirCfg, f.logger), nil
}
