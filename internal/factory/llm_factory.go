package factory

import (
	"fmt"

	"github.com/mikey/reply-triage/internal/adapters/bedrock"
	"github.com/mikey/reply-triage/internal/adapters/breaker"
	"github.com/mikey/reply-triage/internal/adapters/gemini"
	"github.com/mikey/reply-triage/internal/adapters/openai"
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates intent classifier backends
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates a new classifier backend based on the
// configuration, wrapped in a circuit breaker when one is enabled
func (f *LLMFactory) CreateClassifier() (core.IntentClassifier, error) {
	llmConfig := f.cfg.GetLLM()

	var backend core.IntentClassifier
	var err error

	switch llmConfig.Provider {
	case "bedrock":
		backend, err = bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier()
	case "gemini":
		backend, err = gemini.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "openai":
		backend, err = openai.NewFactory(f.cfg, f.logger).CreateClassifier()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, err
	}

	breakerCfg, err := f.cfg.GetBreaker()
	if err != nil {
		return nil, fmt.Errorf("invalid breaker configuration: %w", err)
	}
	if !breakerCfg.Enabled {
		return backend, nil
	}

	return breaker.NewBreakerClassifier(backend, breakerCfg.MaxFailures, breakerCfg.Cooldown, f.logger), nil
}
