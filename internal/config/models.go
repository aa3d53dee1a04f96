package config

import "time"

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// BreakerConfig represents the circuit breaker configuration
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	Cooldown    time.Duration
}

// ClassifierConfig represents the classifier configuration
type ClassifierConfig struct {
	ContextSize        int
	InferTimeout       time.Duration
	FallbackConfidence float64
	ConsistencyBonus   float64
	FlipPenalty        float64
	MinSamples         int
	RecalibrateEvery   time.Duration
}

// AttributionConfig represents the attribution configuration
type AttributionConfig struct {
	TrackingHeader  string
	MaxEditDistance int
}

// ScoringConfig represents the lead scoring configuration
type ScoringConfig struct {
	InterestedWeight    float64
	MaybeWeight         float64
	NotInterestedWeight float64
	Floor               float64
	Ceiling             float64
	HalfLife            time.Duration
}

// RoutingConfig represents the decision routing configuration
type RoutingConfig struct {
	ThresholdHigh float64
	ThresholdMid  float64
}

// PipelineConfig represents the batch pipeline configuration
type PipelineConfig struct {
	Workers          int
	ThreadTTL        time.Duration
	CleanupFrequency time.Duration
}

// ResolverConfig represents the thread resolver configuration
type ResolverConfig struct {
	BlockedDomains []string
}

// StoreConfig represents the state store configuration
type StoreConfig struct {
	Type        string
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
}

// IngestConfig represents the SMTP ingest configuration
type IngestConfig struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// CampaignEntry represents a campaign in the static directory
type CampaignEntry struct {
	ID         string   `mapstructure:"id"`
	Name       string   `mapstructure:"name"`
	TrackingID string   `mapstructure:"tracking_id"`
	Subjects   []string `mapstructure:"subjects"`
	Active     bool     `mapstructure:"active"`
}

// LeadEntry represents a lead in the static directory
type LeadEntry struct {
	ID          string   `mapstructure:"id"`
	Email       string   `mapstructure:"email"`
	CampaignIDs []string `mapstructure:"campaign_ids"`
}

// DirectoryConfig represents the static campaign directory configuration
type DirectoryConfig struct {
	Campaigns []CampaignEntry
	Leads     []LeadEntry
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetBreaker returns the circuit breaker configuration
func (c *Config) GetBreaker() (BreakerConfig, error) {
	cooldown, err := c.GetDuration("breaker.cooldown")
	if err != nil {
		return BreakerConfig{}, err
	}
	return BreakerConfig{
		Enabled:     c.GetBool("breaker.enabled"),
		MaxFailures: uint32(c.GetInt("breaker.max_failures")),
		Cooldown:    cooldown,
	}, nil
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() (ClassifierConfig, error) {
	timeout, err := c.GetDuration("classifier.infer_timeout")
	if err != nil {
		return ClassifierConfig{}, err
	}
	every, err := c.GetDuration("classifier.recalibrate_every")
	if err != nil {
		return ClassifierConfig{}, err
	}
	return ClassifierConfig{
		ContextSize:        c.GetInt("classifier.context_size"),
		InferTimeout:       timeout,
		FallbackConfidence: c.GetFloat64("classifier.fallback_confidence"),
		ConsistencyBonus:   c.GetFloat64("classifier.consistency_bonus"),
		FlipPenalty:        c.GetFloat64("classifier.flip_penalty"),
		MinSamples:         c.GetInt("classifier.min_samples"),
		RecalibrateEvery:   every,
	}, nil
}

// GetAttribution returns the attribution configuration
func (c *Config) GetAttribution() AttributionConfig {
	return AttributionConfig{
		TrackingHeader:  c.GetString("attribution.tracking_header"),
		MaxEditDistance: c.GetInt("attribution.max_edit_distance"),
	}
}

// GetScoring returns the lead scoring configuration
func (c *Config) GetScoring() (ScoringConfig, error) {
	halfLife, err := c.GetDuration("scoring.half_life")
	if err != nil {
		return ScoringConfig{}, err
	}
	return ScoringConfig{
		InterestedWeight:    c.GetFloat64("scoring.interested_weight"),
		MaybeWeight:         c.GetFloat64("scoring.maybe_weight"),
		NotInterestedWeight: c.GetFloat64("scoring.not_interested_weight"),
		Floor:               c.GetFloat64("scoring.floor"),
		Ceiling:             c.GetFloat64("scoring.ceiling"),
		HalfLife:            halfLife,
	}, nil
}

// GetRouting returns the decision routing configuration
func (c *Config) GetRouting() RoutingConfig {
	return RoutingConfig{
		ThresholdHigh: c.GetFloat64("routing.threshold_high"),
		ThresholdMid:  c.GetFloat64("routing.threshold_mid"),
	}
}

// GetPipeline returns the batch pipeline configuration
func (c *Config) GetPipeline() (PipelineConfig, error) {
	ttl, err := c.GetDuration("pipeline.thread_ttl")
	if err != nil {
		return PipelineConfig{}, err
	}
	freq, err := c.GetDuration("pipeline.cleanup_frequency")
	if err != nil {
		return PipelineConfig{}, err
	}
	return PipelineConfig{
		Workers:          c.GetInt("pipeline.workers"),
		ThreadTTL:        ttl,
		CleanupFrequency: freq,
	}, nil
}

// GetResolver returns the thread resolver configuration
func (c *Config) GetResolver() ResolverConfig {
	return ResolverConfig{
		BlockedDomains: c.GetStringSlice("resolver.blocked_domains"),
	}
}

// GetStore returns the state store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:        c.GetString("store.type"),
		SQLitePath:  c.GetString("store.sqlite_path"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
		PostgresDSN: c.GetString("store.postgres_dsn"),
	}
}

// GetIngest returns the SMTP ingest configuration
func (c *Config) GetIngest() (IngestConfig, error) {
	readTimeout, err := c.GetDuration("ingest.read_timeout")
	if err != nil {
		return IngestConfig{}, err
	}
	writeTimeout, err := c.GetDuration("ingest.write_timeout")
	if err != nil {
		return IngestConfig{}, err
	}
	return IngestConfig{
		ListenAddress:   c.GetString("ingest.listen_address"),
		Domain:          c.GetString("ingest.domain"),
		MaxMessageBytes: int64(c.GetInt("ingest.max_message_bytes")),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
	}, nil
}

// GetDirectory returns the static campaign directory configuration
func (c *Config) GetDirectory() (DirectoryConfig, error) {
	var dir DirectoryConfig
	if err := c.UnmarshalKey("directory.campaigns", &dir.Campaigns); err != nil {
		return DirectoryConfig{}, err
	}
	if err := c.UnmarshalKey("directory.leads", &dir.Leads); err != nil {
		return DirectoryConfig{}, err
	}
	return dir, nil
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}
