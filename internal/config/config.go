package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Models     ModelsConfig     `yaml:"models" mapstructure:"models"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Routing    RoutingConfig    `yaml:"routing" mapstructure:"routing"`
	TimeTravel TimeTravelConfig `yaml:"timetravel" mapstructure:"timetravel"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port          int      `yaml:"port" mapstructure:"port"`
	CORSOrigins   []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	StreamBuffer  int      `yaml:"stream_buffer" mapstructure:"stream_buffer"`
	HeartbeatSecs int      `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini settings. Models are registered as extra
// ensemble members.
type GeminiConfig struct {
	Key    string   `yaml:"key" mapstructure:"key"`
	Models []string `yaml:"models" mapstructure:"models"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Model         string  `yaml:"model" mapstructure:"model"`
	RecencyFilter string  `yaml:"recency_filter" mapstructure:"recency_filter"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
}

// ModelsConfig names the model behind each tier.
type ModelsConfig struct {
	Cheap      string `yaml:"cheap" mapstructure:"cheap"`
	Mid        string `yaml:"mid" mapstructure:"mid"`
	Best       string `yaml:"best" mapstructure:"best"`
	Synthesis  string `yaml:"synthesis" mapstructure:"synthesis"`
	Classifier string `yaml:"classifier" mapstructure:"classifier"`
	// Ensemble is the default model set for the ensemble endpoint. Empty
	// means every tier model.
	Ensemble []string `yaml:"ensemble" mapstructure:"ensemble"`
}

// CacheConfig configures the in-memory caches.
type CacheConfig struct {
	Enabled                bool `yaml:"enabled" mapstructure:"enabled"`
	ResponseTTLSecs        int  `yaml:"response_ttl_secs" mapstructure:"response_ttl_secs"`
	ClassificationTTLHours int  `yaml:"classification_ttl_hours" mapstructure:"classification_ttl_hours"`
	SearchTTLHours         int  `yaml:"search_ttl_hours" mapstructure:"search_ttl_hours"`
	MaxEntries             int  `yaml:"max_entries" mapstructure:"max_entries"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Requests   int `yaml:"requests" mapstructure:"requests"`
	WindowSecs int `yaml:"window_secs" mapstructure:"window_secs"`
}

// ResilienceConfig configures retries, breakers and concurrency for
// provider calls.
type ResilienceConfig struct {
	FailureThreshold   int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoverySecs       int `yaml:"recovery_secs" mapstructure:"recovery_secs"`
	HalfOpenMaxCalls   int `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
	MaxRetries         int `yaml:"max_retries" mapstructure:"max_retries"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxConcurrent      int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// RoutingConfig tunes the routing policy.
type RoutingConfig struct {
	TemporalMinModels      int    `yaml:"temporal_min_models" mapstructure:"temporal_min_models"`
	KnowledgeCutoffYear    int    `yaml:"knowledge_cutoff_year" mapstructure:"knowledge_cutoff_year"`
	KnowledgeCutoffDisplay string `yaml:"knowledge_cutoff_display" mapstructure:"knowledge_cutoff_display"`
}

// TimeTravelConfig configures the snapshot engine.
type TimeTravelConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxSnapshots        int     `yaml:"max_snapshots" mapstructure:"max_snapshots"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	SnapshotTimeoutSecs int     `yaml:"snapshot_timeout_secs" mapstructure:"snapshot_timeout_secs"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	ShallowAnswerChars  int     `yaml:"shallow_answer_chars" mapstructure:"shallow_answer_chars"`
	ResultCacheTTLHours int     `yaml:"result_cache_ttl_hours" mapstructure:"result_cache_ttl_hours"`
	// TimelinesFile overrides the embedded timeline catalogue.
	TimelinesFile string `yaml:"timelines_file" mapstructure:"timelines_file"`
}

// MonitoringConfig configures latency alerting.
type MonitoringConfig struct {
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LatencyP95ThresholdMs float64 `yaml:"latency_p95_threshold_ms" mapstructure:"latency_p95_threshold_ms"`
	ErrorRateThreshold    float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	OpenCircuitAlert      bool    `yaml:"open_circuit_alert" mapstructure:"open_circuit_alert"`
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// PricingConfig overrides the built-in cost table.
type PricingConfig struct {
	Models         map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	Perplexity     ModelPricing            `yaml:"perplexity" mapstructure:"perplexity"`
	SearchPerQuery float64                 `yaml:"search_per_query" mapstructure:"search_per_query"`
}

// ModelPricing holds per-model token pricing (USD per thousand tokens).
type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k" mapstructure:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" mapstructure:"output_per_1k"`
	LatencySecs float64 `yaml:"latency_secs" mapstructure:"latency_secs"`
}

const keyDelim = "::"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// Model IDs such as gemini-2.5-flash are map keys under pricing.models,
	// so nested keys are split on "::" instead of ".".
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log::level", "info")
	v.SetDefault("log::format", "json")
	v.SetDefault("server::port", 8000)
	v.SetDefault("server::cors_origins", []string{"*"})
	v.SetDefault("server::stream_buffer", 32)
	v.SetDefault("server::heartbeat_secs", 15)
	v.SetDefault("anthropic::key", "")
	v.SetDefault("anthropic::base_url", "")
	v.SetDefault("gemini::key", "")
	v.SetDefault("gemini::models", []string{})
	v.SetDefault("perplexity::key", "")
	v.SetDefault("perplexity::base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity::model", "sonar")
	v.SetDefault("perplexity::recency_filter", "month")
	v.SetDefault("perplexity::rps", 5)
	v.SetDefault("jina::key", "")
	v.SetDefault("jina::search_base_url", "https://s.jina.ai")
	v.SetDefault("jina::rps", 5)
	v.SetDefault("models::cheap", "claude-haiku-4-5-20251001")
	v.SetDefault("models::mid", "claude-sonnet-4-5-20250929")
	v.SetDefault("models::best", "claude-opus-4-6")
	v.SetDefault("models::synthesis", "claude-sonnet-4-5-20250929")
	v.SetDefault("models::classifier", "")
	v.SetDefault("cache::enabled", true)
	v.SetDefault("cache::response_ttl_secs", 86400)
	v.SetDefault("cache::classification_ttl_hours", 24)
	v.SetDefault("cache::search_ttl_hours", 1)
	v.SetDefault("cache::max_entries", 10000)
	v.SetDefault("ratelimit::requests", 60)
	v.SetDefault("ratelimit::window_secs", 60)
	v.SetDefault("resilience::failure_threshold", 5)
	v.SetDefault("resilience::recovery_secs", 30)
	v.SetDefault("resilience::half_open_max_calls", 3)
	v.SetDefault("resilience::max_retries", 3)
	v.SetDefault("resilience::request_timeout_secs", 30)
	v.SetDefault("resilience::max_concurrent", 10)
	v.SetDefault("routing::temporal_min_models", 2)
	v.SetDefault("routing::knowledge_cutoff_year", 2023)
	v.SetDefault("routing::knowledge_cutoff_display", "October 2023")
	v.SetDefault("timetravel::enabled", true)
	v.SetDefault("timetravel::max_snapshots", 5)
	v.SetDefault("timetravel::concurrency", 5)
	v.SetDefault("timetravel::snapshot_timeout_secs", 45)
	v.SetDefault("timetravel::similarity_threshold", 0.85)
	v.SetDefault("timetravel::shallow_answer_chars", 400)
	v.SetDefault("timetravel::result_cache_ttl_hours", 24)
	v.SetDefault("timetravel::timelines_file", "")
	v.SetDefault("monitoring::check_interval_secs", 60)
	v.SetDefault("monitoring::latency_p95_threshold_ms", 30000)
	v.SetDefault("monitoring::error_rate_threshold", 0.25)
	v.SetDefault("monitoring::open_circuit_alert", false)
	v.SetDefault("monitoring::webhook_url", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// knownFamilies are the model name prefixes a provider exists for.
var knownFamilies = []string{"claude-", "gemini-"}

func knownModel(name string) bool {
	for _, prefix := range knownFamilies {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Validate checks the settings needed by mode ("serve" or "cli") and
// reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.RateLimit.Requests <= 0 || c.RateLimit.WindowSecs <= 0 {
			errs = append(errs, "ratelimit.requests and ratelimit.window_secs must be > 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	tiers := map[string]string{
		"models.cheap":     c.Models.Cheap,
		"models.mid":       c.Models.Mid,
		"models.best":      c.Models.Best,
		"models.synthesis": c.Models.Synthesis,
	}
	for _, key := range []string{"models.cheap", "models.mid", "models.best", "models.synthesis"} {
		name := tiers[key]
		if name == "" {
			errs = append(errs, key+" is required")
			continue
		}
		if !knownModel(name) {
			errs = append(errs, fmt.Sprintf("%s: unknown model family %q", key, name))
		}
	}
	if c.Models.Classifier != "" && !knownModel(c.Models.Classifier) {
		errs = append(errs, fmt.Sprintf("models.classifier: unknown model family %q", c.Models.Classifier))
	}
	for _, m := range c.Models.Ensemble {
		if !knownModel(m) {
			errs = append(errs, fmt.Sprintf("models.ensemble: unknown model family %q", m))
		}
	}

	if c.Resilience.MaxConcurrent < 1 || c.Resilience.MaxConcurrent > 100 {
		errs = append(errs, "resilience.max_concurrent must be between 1 and 100")
	}
	if t := c.TimeTravel.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, "timetravel.similarity_threshold must be in (0, 1]")
	}
	if c.TimeTravel.MaxSnapshots < 1 {
		errs = append(errs, "timetravel.max_snapshots must be >= 1")
	}
	if r := c.Monitoring.ErrorRateThreshold; r < 0 || r > 1 {
		errs = append(errs, "monitoring.error_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
