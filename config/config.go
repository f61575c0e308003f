package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	LLM       LLMConfig
	Matching  MatchingConfig
	Resolver  ResolverConfig
	Recommend RecommendConfig
	Image     ImageConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CatalogConfig selects and configures the catalog search backend
type CatalogConfig struct {
	Provider          string  `mapstructure:"provider"` // "googlebooks" or "openlibrary"
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LLMConfig configures the suggestion and OCR provider
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai", "gemini" or "ollama"
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
}

// MatchingConfig holds candidate scoring and retry settings
type MatchingConfig struct {
	TitleWeight      float64 `mapstructure:"title_weight"`
	TitleThreshold   float64 `mapstructure:"title_threshold"`
	AuthorThreshold  float64 `mapstructure:"author_threshold"`
	MaxRetries       int     `mapstructure:"max_retries"`
	ProviderAttempts int     `mapstructure:"provider_attempts"`
}

// ResolverConfig holds progressive search settings
type ResolverConfig struct {
	SearchLimit int           `mapstructure:"search_limit"`
	ConvergeAt  int           `mapstructure:"converge_at"`
	SearchDelay time.Duration `mapstructure:"search_delay"`
}

// RecommendConfig holds recommendation pipeline settings
type RecommendConfig struct {
	MinQuestionLength int `mapstructure:"min_question_length"`
	Concurrency       int `mapstructure:"concurrency"`
}

// ImageConfig holds cover comparison settings
type ImageConfig struct {
	Enabled            bool  `mapstructure:"enabled"`
	TieBreakCandidates int   `mapstructure:"tie_break_candidates"`
	MaxBytes           int64 `mapstructure:"max_bytes"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type string        `mapstructure:"type"` // "memory", "sqlite" or "none"
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "auto", "console" or "json"
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration, reading the given file when path is not empty
func LoadFrom(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/booklens/")
	}

	// BOOKLENS_LLM_API_KEY -> llm.api_key
	v.SetEnvPrefix("BOOKLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.request_timeout", "2m")

	v.SetDefault("catalog.provider", "googlebooks")
	v.SetDefault("catalog.api_key", "")
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.requests_per_second", 5.0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.vision_model", "")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("matching.title_weight", 0.8)
	v.SetDefault("matching.title_threshold", 0.7)
	v.SetDefault("matching.author_threshold", 0.5)
	v.SetDefault("matching.max_retries", 3)
	v.SetDefault("matching.provider_attempts", 3)

	v.SetDefault("resolver.search_limit", 10)
	v.SetDefault("resolver.converge_at", 3)
	v.SetDefault("resolver.search_delay", "500ms")

	v.SetDefault("recommend.min_question_length", 4)
	v.SetDefault("recommend.concurrency", 1)

	v.SetDefault("image.enabled", true)
	v.SetDefault("image.tie_break_candidates", 3)
	v.SetDefault("image.max_bytes", 5<<20)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.path", "booklens-cache.db")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("ratelimit.per_ip", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
}

func validate(config *Config) error {
	switch config.Catalog.Provider {
	case "googlebooks", "openlibrary":
	default:
		return fmt.Errorf("catalog provider must be 'googlebooks' or 'openlibrary', got: %s", config.Catalog.Provider)
	}

	switch config.LLM.Provider {
	case "openai", "gemini":
		if config.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key is required for provider %s (set BOOKLENS_LLM_API_KEY)", config.LLM.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("llm provider must be 'openai', 'gemini' or 'ollama', got: %s", config.LLM.Provider)
	}

	if config.Matching.TitleWeight < 0 || config.Matching.TitleWeight > 1 {
		return fmt.Errorf("matching title_weight must be within [0,1], got: %v", config.Matching.TitleWeight)
	}
	if config.Matching.TitleThreshold < 0 || config.Matching.TitleThreshold > 1 {
		return fmt.Errorf("matching title_threshold must be within [0,1], got: %v", config.Matching.TitleThreshold)
	}
	if config.Matching.AuthorThreshold < 0 || config.Matching.AuthorThreshold > 1 {
		return fmt.Errorf("matching author_threshold must be within [0,1], got: %v", config.Matching.AuthorThreshold)
	}
	if config.Matching.MaxRetries < 1 {
		return fmt.Errorf("matching max_retries must be at least 1, got: %d", config.Matching.MaxRetries)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "sqlite" && config.Cache.Type != "none" {
		return fmt.Errorf("cache type must be 'memory', 'sqlite' or 'none', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "sqlite" && config.Cache.Path == "" {
		return fmt.Errorf("cache path is required when cache type is 'sqlite'")
	}

	switch config.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging format must be 'auto', 'console' or 'json', got: %s", config.Logging.Format)
	}

	return nil
}
