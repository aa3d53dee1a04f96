package gemini

import (
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"go.uber.org/zap"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a new GeminiClient
func (f *Factory) CreateClassifier() (core.IntentClassifier, error) {
	geminiCfg := f.cfg.GetGemini()

	client, err := NewGeminiClient(
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		geminiCfg.MaxBodySize,
		f.logger,
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
