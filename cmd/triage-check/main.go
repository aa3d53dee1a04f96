package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/reply-triage/internal/adapters/directory"
	"github.com/mikey/reply-triage/internal/adapters/sink"
	"github.com/mikey/reply-triage/internal/adapters/store"
	"github.com/mikey/reply-triage/internal/blocklist"
	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/factory"
	"github.com/mikey/reply-triage/internal/logging"
	"github.com/mikey/reply-triage/internal/utils"
	"go.uber.org/zap"
)

var (
	// LLM provider flags
	provider    = flag.String("provider", "openai", "LLM provider (bedrock, gemini, openai)")
	maxTokens   = flag.Int("max-tokens", 600, "Maximum tokens for LLM response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for LLM generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for LLM generation")
	maxBodySize = flag.Int("max-body-size", 4096, "Maximum reply body size to send to LLM")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4", "OpenAI model name")

	// Routing flags
	thresholdHigh = flag.Float64("threshold-high", 0.8, "Confidence needed for the high-confidence action set")
	thresholdMid  = flag.Float64("threshold-mid", 0.6, "Confidence needed for the mid-confidence action set")

	// Attribution flags
	trackingHeader = flag.String("tracking-header", "X-Campaign-ID", "Header carrying the campaign tracking id")
	blockedDomains = flag.String("blocked-domains", "", "Comma-separated list of blocked sender domains")

	// Input flags
	inputFile  = flag.String("file", "", "Input reply file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	msg, err := readMessage(logger)
	if err != nil {
		logger.Fatal("Failed to read reply", zap.Error(err))
	}

	pipeline, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	fmt.Printf("\n=== Reply Summary ===\n")
	fmt.Printf("From: %s\n", msg.Sender)
	fmt.Printf("Subject: %s\n", msg.Subject)
	fmt.Printf("Message-ID: %s\n", msg.ID)
	fmt.Printf("Body length: %d bytes\n", len(msg.Body))

	fmt.Printf("\n=== Triage ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("llm.provider"))

	startTime := time.Now()
	summary, err := pipeline.ProcessBatch(context.Background(), []*core.Message{msg})
	if err != nil {
		logger.Fatal("Failed to triage reply", zap.Error(err))
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	if summary.Duplicates > 0 {
		fmt.Printf("Duplicate: the reply was already ingested\n")
	}
	if summary.Spam > 0 {
		fmt.Printf("Filtered: automated or blocked sender\n")
	}
	for _, decision := range summary.Decisions {
		fmt.Printf("Label: %s\n", decision.Classification.Label)
		fmt.Printf("Confidence: %.4f (raw %.4f)\n", decision.Classification.Confidence, decision.Classification.RawConfidence)
		fmt.Printf("Fallback: %t\n", decision.Classification.Fallback)
		fmt.Printf("Reasoning: %s\n", decision.Classification.Reasoning)
		fmt.Printf("Campaign: %s (matched by %s, confidence %.2f)\n",
			decision.Attribution.CampaignID, decision.Attribution.Reason, decision.Attribution.Confidence)
		if decision.Score.LeadID != "" {
			fmt.Printf("Lead score: %.2f\n", decision.Score.Score)
		}
		actions := make([]string, 0, len(decision.Actions))
		for _, a := range decision.Actions {
			actions = append(actions, string(a))
		}
		fmt.Printf("Actions: %s\n", strings.Join(actions, ", "))
	}
	fmt.Printf("Processing time: %v\n", duration)
}

// readMessage parses the reply from the input file or stdin
func readMessage(logger *zap.Logger) (*core.Message, error) {
	var reader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file %s: %w", *inputFile, err)
		}
		defer file.Close()
		reader = file
		logger.Info("Reading reply from file", zap.String("file", *inputFile))
	} else {
		reader = os.Stdin
		logger.Info("Reading reply from stdin")
	}

	parsed, err := mail.ReadMessage(bufio.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}

	bodyBytes, err := io.ReadAll(parsed.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply body: %w", err)
	}

	sender := parsed.Header.Get("From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}

	msg := &core.Message{
		ID:         strings.Trim(parsed.Header.Get("Message-ID"), "<> "),
		Sender:     sender,
		Recipients: strings.Split(parsed.Header.Get("To"), ","),
		Subject:    parsed.Header.Get("Subject"),
		Body:       string(bodyBytes),
		InReplyTo:  strings.Trim(parsed.Header.Get("In-Reply-To"), "<> "),
		Headers:    map[string][]string(parsed.Header),
	}
	for _, ref := range strings.Fields(parsed.Header.Get("References")) {
		msg.References = append(msg.References, strings.Trim(ref, "<>"))
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if date, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = date
	} else {
		msg.ReceivedAt = time.Now()
	}
	return msg, nil
}

// buildPipeline assembles a one-shot pipeline on an in-memory store
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*core.Pipeline, error) {
	textProcessor := utils.NewTextProcessor(logger)
	repo := store.NewMemoryStore(logger)
	checker := blocklist.NewChecker(cfg.GetResolver().BlockedDomains, logger)

	backend, err := factory.NewLLMFactory(cfg, logger, textProcessor).CreateClassifier()
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier backend: %w", err)
	}

	classifierCfg, err := cfg.GetClassifier()
	if err != nil {
		return nil, fmt.Errorf("invalid classifier configuration: %w", err)
	}
	scoringCfg, err := cfg.GetScoring()
	if err != nil {
		return nil, fmt.Errorf("invalid scoring configuration: %w", err)
	}
	dirCfg, err := cfg.GetDirectory()
	if err != nil {
		return nil, fmt.Errorf("invalid directory configuration: %w", err)
	}
	attrCfg := cfg.GetAttribution()
	routingCfg := cfg.GetRouting()

	resolver := core.NewThreadResolver(repo, textProcessor, checker, logger)
	classifier := core.NewContextClassifier(backend, repo, core.ClassifierConfig{
		ContextSize:        classifierCfg.ContextSize,
		InferTimeout:       classifierCfg.InferTimeout,
		FallbackConfidence: classifierCfg.FallbackConfidence,
		MinSamples:         classifierCfg.MinSamples,
		Defaults: core.CalibrationParams{
			ConsistencyBonus: classifierCfg.ConsistencyBonus,
			FlipPenalty:      classifierCfg.FlipPenalty,
		},
	}, logger)
	engine := core.NewAttributionEngine(
		repo,
		directory.NewStaticDirectory(dirCfg, logger),
		textProcessor,
		core.ScoringConfig{
			Weights: map[core.Label]float64{
				core.LabelInterested:      scoringCfg.InterestedWeight,
				core.LabelMaybeInterested: scoringCfg.MaybeWeight,
				core.LabelNotInterested:   scoringCfg.NotInterestedWeight,
			},
			Floor:    scoringCfg.Floor,
			Ceiling:  scoringCfg.Ceiling,
			HalfLife: scoringCfg.HalfLife,
		},
		core.AttributionConfig{
			TrackingHeader:  attrCfg.TrackingHeader,
			MaxEditDistance: attrCfg.MaxEditDistance,
		},
		logger,
	)

	return core.NewPipeline(
		resolver,
		classifier,
		engine,
		repo,
		sink.NewLogSink(logger),
		core.RoutingPolicy{ThresholdHigh: routingCfg.ThresholdHigh, ThresholdMid: routingCfg.ThresholdMid},
		core.NewStats(),
		core.PipelineConfig{Workers: 1},
		logger,
	), nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("llm.provider", *provider)

	switch *provider {
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	}

	v.Set("routing.threshold_high", *thresholdHigh)
	v.Set("routing.threshold_mid", *thresholdMid)
	v.Set("attribution.tracking_header", *trackingHeader)

	if *blockedDomains != "" {
		domains := strings.Split(*blockedDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("resolver.blocked_domains", domains)
	} else {
		v.Set("resolver.blocked_domains", []string{})
	}

	// Never trip the breaker on a one-shot run
	v.Set("breaker.enabled", false)

	return config.NewFromViper(v)
}
