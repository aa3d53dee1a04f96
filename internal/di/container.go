package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/adapters/sink"
	"github.com/mikey/reply-triage/internal/blocklist"
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/factory"
	"github.com/mikey/reply-triage/internal/logging"
	"github.com/mikey/reply-triage/internal/ports"
	"github.com/mikey/reply-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewDirectoryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewIngestFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register blocklist checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *blocklist.Checker {
		resolverCfg := cfg.GetResolver()
		if len(resolverCfg.BlockedDomains) > 0 {
			logger.Info("Loaded blocked domains", zap.Strings("domains", resolverCfg.BlockedDomains))
		}
		return blocklist.NewChecker(resolverCfg.BlockedDomains, logger)
	}); err != nil {
		return nil, err
	}

	// Register state repository
	if err := container.Provide(func(f *factory.StoreFactory) (core.StateRepository, error) {
		return f.CreateStateRepository()
	}); err != nil {
		return nil, err
	}

	// Register classifier backend
	if err := container.Provide(func(f *factory.LLMFactory) (core.IntentClassifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}

	// Register campaign directory
	if err := container.Provide(func(f *factory.DirectoryFactory) (core.CampaignDirectory, error) {
		return f.CreateCampaignDirectory()
	}); err != nil {
		return nil, err
	}

	// Register decision sink
	if err := container.Provide(func(logger *zap.Logger) core.DecisionSink {
		return sink.NewLogSink(logger)
	}); err != nil {
		return nil, err
	}

	// Register core configuration snapshots
	if err := container.Provide(func(cfg *config.Config) (core.ClassifierConfig, error) {
		classifierCfg, err := cfg.GetClassifier()
		if err != nil {
			return core.ClassifierConfig{}, fmt.Errorf("invalid classifier configuration: %w", err)
		}
		return core.ClassifierConfig{
			ContextSize:        classifierCfg.ContextSize,
			InferTimeout:       classifierCfg.InferTimeout,
			FallbackConfidence: classifierCfg.FallbackConfidence,
			MinSamples:         classifierCfg.MinSamples,
			Defaults: core.CalibrationParams{
				ConsistencyBonus: classifierCfg.ConsistencyBonus,
				FlipPenalty:      classifierCfg.FlipPenalty,
			},
		}, nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) (core.ScoringConfig, error) {
		scoringCfg, err := cfg.GetScoring()
		if err != nil {
			return core.ScoringConfig{}, fmt.Errorf("invalid scoring configuration: %w", err)
		}
		return core.ScoringConfig{
			Weights: map[core.Label]float64{
				core.LabelInterested:      scoringCfg.InterestedWeight,
				core.LabelMaybeInterested: scoringCfg.MaybeWeight,
				core.LabelNotInterested:   scoringCfg.NotInterestedWeight,
			},
			Floor:    scoringCfg.Floor,
			Ceiling:  scoringCfg.Ceiling,
			HalfLife: scoringCfg.HalfLife,
		}, nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) core.AttributionConfig {
		attrCfg := cfg.GetAttribution()
		return core.AttributionConfig{
			TrackingHeader:  attrCfg.TrackingHeader,
			MaxEditDistance: attrCfg.MaxEditDistance,
		}
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) core.RoutingPolicy {
		routingCfg := cfg.GetRouting()
		return core.RoutingPolicy{
			ThresholdHigh: routingCfg.ThresholdHigh,
			ThresholdMid:  routingCfg.ThresholdMid,
		}
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) (core.PipelineConfig, error) {
		pipelineCfg, err := cfg.GetPipeline()
		if err != nil {
			return core.PipelineConfig{}, fmt.Errorf("invalid pipeline configuration: %w", err)
		}
		return core.PipelineConfig{Workers: pipelineCfg.Workers}, nil
	}); err != nil {
		return nil, err
	}

	// Register core components
	if err := container.Provide(core.NewThreadResolver); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewContextClassifier); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewAttributionEngine); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewStats); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewPipeline); err != nil {
		return nil, err
	}

	// Register ingest server
	if err := container.Provide(func(f *factory.IngestFactory) (ports.IngestServer, error) {
		return f.CreateIngestServer()
	}); err != nil {
		return nil, err
	}

	return container, nil
}
