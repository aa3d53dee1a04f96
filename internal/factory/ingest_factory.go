package factory

import (
	"fmt"

	"github.com/mikey/reply-triage/internal/adapters/ingest"
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/ports"
	"go.uber.org/zap"
)

// IngestFactory creates ingest servers based on configuration
type IngestFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *core.Pipeline
}

// NewIngestFactory creates a new ingest factory
func NewIngestFactory(cfg *config.Config, logger *zap.Logger, pipeline *core.Pipeline) *IngestFactory {
	return &IngestFactory{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
	}
}

// CreateIngestServer creates the SMTP ingest server
func (f *IngestFactory) CreateIngestServer() (ports.IngestServer, error) {
	ingestCfg, err := f.cfg.GetIngest()
	if err != nil {
		return nil, fmt.Errorf("invalid ingest configuration: %w", err)
	}

	return ingest.NewSMTPIngest(
		f.pipeline,
		f.logger,
		ingestCfg.ListenAddress,
		ingestCfg.Domain,
		ingestCfg.MaxMessageBytes,
		ingestCfg.ReadTimeout,
		ingestCfg.WriteTimeout,
	), nil
}
