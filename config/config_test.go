package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cleanupEnv := func() {
		os.Unsetenv("BOOKLENS_SERVER_PORT")
		os.Unsetenv("BOOKLENS_SERVER_ENVIRONMENT")
		os.Unsetenv("BOOKLENS_CATALOG_PROVIDER")
		os.Unsetenv("BOOKLENS_LLM_PROVIDER")
		os.Unsetenv("BOOKLENS_LLM_API_KEY")
		os.Unsetenv("BOOKLENS_MATCHING_TITLE_THRESHOLD")
		os.Unsetenv("BOOKLENS_RESOLVER_SEARCH_DELAY")
		os.Unsetenv("BOOKLENS_CACHE_TYPE")
		os.Unsetenv("BOOKLENS_CACHE_PATH")
		os.Unsetenv("BOOKLENS_CACHE_TTL")
		os.Unsetenv("BOOKLENS_RATELIMIT_PER_IP")
	}

	// Keep a stray config.yaml or .env in the package directory out of the way.
	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)
	os.Chdir(t.TempDir())

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("BOOKLENS_LLM_API_KEY", "test-key")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Catalog.Provider != "googlebooks" {
			t.Errorf("Catalog.Provider = %s, want googlebooks", cfg.Catalog.Provider)
		}
		if cfg.Matching.TitleWeight != 0.8 {
			t.Errorf("Matching.TitleWeight = %v, want 0.8", cfg.Matching.TitleWeight)
		}
		if cfg.Matching.MaxRetries != 3 {
			t.Errorf("Matching.MaxRetries = %d, want 3", cfg.Matching.MaxRetries)
		}
		if cfg.Resolver.SearchLimit != 10 {
			t.Errorf("Resolver.SearchLimit = %d, want 10", cfg.Resolver.SearchLimit)
		}
		if cfg.Resolver.ConvergeAt != 3 {
			t.Errorf("Resolver.ConvergeAt = %d, want 3", cfg.Resolver.ConvergeAt)
		}
		if cfg.Resolver.SearchDelay != 500*time.Millisecond {
			t.Errorf("Resolver.SearchDelay = %v, want 500ms", cfg.Resolver.SearchDelay)
		}
		if cfg.Recommend.MinQuestionLength != 4 {
			t.Errorf("Recommend.MinQuestionLength = %d, want 4", cfg.Recommend.MinQuestionLength)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 24*time.Hour {
			t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
		}
		if cfg.Logging.Format != "auto" {
			t.Errorf("Logging.Format = %s, want auto", cfg.Logging.Format)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("BOOKLENS_SERVER_PORT", "9090")
		os.Setenv("BOOKLENS_CATALOG_PROVIDER", "openlibrary")
		os.Setenv("BOOKLENS_LLM_PROVIDER", "ollama")
		os.Setenv("BOOKLENS_MATCHING_TITLE_THRESHOLD", "0.9")
		os.Setenv("BOOKLENS_RESOLVER_SEARCH_DELAY", "1s")
		os.Setenv("BOOKLENS_CACHE_TYPE", "sqlite")
		os.Setenv("BOOKLENS_CACHE_PATH", "/tmp/booklens.db")
		os.Setenv("BOOKLENS_RATELIMIT_PER_IP", "200")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Catalog.Provider != "openlibrary" {
			t.Errorf("Catalog.Provider = %s, want openlibrary", cfg.Catalog.Provider)
		}
		if cfg.LLM.Provider != "ollama" {
			t.Errorf("LLM.Provider = %s, want ollama", cfg.LLM.Provider)
		}
		if cfg.Matching.TitleThreshold != 0.9 {
			t.Errorf("Matching.TitleThreshold = %v, want 0.9", cfg.Matching.TitleThreshold)
		}
		if cfg.Resolver.SearchDelay != time.Second {
			t.Errorf("Resolver.SearchDelay = %v, want 1s", cfg.Resolver.SearchDelay)
		}
		if cfg.Cache.Type != "sqlite" {
			t.Errorf("Cache.Type = %s, want sqlite", cfg.Cache.Type)
		}
		if cfg.Cache.Path != "/tmp/booklens.db" {
			t.Errorf("Cache.Path = %s, want /tmp/booklens.db", cfg.Cache.Path)
		}
		if cfg.RateLimit.PerIP != 200 {
			t.Errorf("RateLimit.PerIP = %d, want 200", cfg.RateLimit.PerIP)
		}
	})

	t.Run("fails validation when API key is missing", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Fatal("Load() error = nil, want error for missing API key")
		}
		if err.Error() != "invalid configuration: LLM API key is required for provider openai (set BOOKLENS_LLM_API_KEY)" {
			t.Errorf("Load() error = %v, want 'LLM API key is required'", err)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("BOOKLENS_LLM_API_KEY", "test-key")
		os.Setenv("BOOKLENS_CACHE_TYPE", "invalid")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})

	t.Run("reads an explicit config file", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		path := t.TempDir() + "/booklens.yaml"
		content := `
llm:
  provider: gemini
  api_key: file-key
matching:
  author_threshold: 0.4
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		cfg, err := LoadFrom(path)
		if err != nil {
			t.Fatalf("LoadFrom() error = %v, want nil", err)
		}
		if cfg.LLM.Provider != "gemini" {
			t.Errorf("LLM.Provider = %s, want gemini", cfg.LLM.Provider)
		}
		if cfg.Matching.AuthorThreshold != 0.4 {
			t.Errorf("Matching.AuthorThreshold = %v, want 0.4", cfg.Matching.AuthorThreshold)
		}
	})

	t.Run("fails when explicit config file is missing", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("BOOKLENS_LLM_API_KEY", "test-key")
		defer cleanupEnv()

		_, err := LoadFrom(t.TempDir() + "/missing.yaml")
		if err == nil {
			t.Error("LoadFrom() error = nil, want error for missing file")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(t.TempDir())

		if err := loadEnvFile(); err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables from .env file", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(t.TempDir())

		envContent := `
# Comment line
TEST_VAR_1=value1
TEST_VAR_2=value2
`
		if err := os.WriteFile(".env", []byte(envContent), 0o644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}
		os.Unsetenv("TEST_VAR_1")
		os.Unsetenv("TEST_VAR_2")
		defer os.Unsetenv("TEST_VAR_1")
		defer os.Unsetenv("TEST_VAR_2")

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_VAR_1") != "value1" {
			t.Errorf("TEST_VAR_1 = %s, want value1", os.Getenv("TEST_VAR_1"))
		}
		if os.Getenv("TEST_VAR_2") != "value2" {
			t.Errorf("TEST_VAR_2 = %s, want value2", os.Getenv("TEST_VAR_2"))
		}
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(t.TempDir())

		os.Setenv("TEST_OVERRIDE", "existing-value")
		defer os.Unsetenv("TEST_OVERRIDE")

		if err := os.WriteFile(".env", []byte("TEST_OVERRIDE=new-value"), 0o644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_OVERRIDE") != "existing-value" {
			t.Errorf("TEST_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("TEST_OVERRIDE"))
		}
	})
}

func validConfig() *Config {
	return &Config{
		Catalog:  CatalogConfig{Provider: "googlebooks"},
		LLM:      LLMConfig{Provider: "openai", APIKey: "test-key"},
		Matching: MatchingConfig{TitleWeight: 0.8, TitleThreshold: 0.7, AuthorThreshold: 0.5, MaxRetries: 3},
		Cache:    CacheConfig{Type: "memory"},
		Logging:  LoggingConfig{Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("validates successfully with all required fields", func(t *testing.T) {
		if err := validate(validConfig()); err != nil {
			t.Errorf("validate() error = %v, want nil", err)
		}
	})

	t.Run("ollama does not need an API key", func(t *testing.T) {
		cfg := validConfig()
		cfg.LLM = LLMConfig{Provider: "ollama"}
		if err := validate(cfg); err != nil {
			t.Errorf("validate() error = %v, want nil", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown catalog provider", func(c *Config) { c.Catalog.Provider = "amazon" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "markov" }},
		{"gemini without key", func(c *Config) { c.LLM = LLMConfig{Provider: "gemini"} }},
		{"title weight above one", func(c *Config) { c.Matching.TitleWeight = 1.2 }},
		{"negative author threshold", func(c *Config) { c.Matching.AuthorThreshold = -0.1 }},
		{"zero retries", func(c *Config) { c.Matching.MaxRetries = 0 }},
		{"invalid cache type", func(c *Config) { c.Cache.Type = "redis" }},
		{"sqlite without path", func(c *Config) { c.Cache = CacheConfig{Type: "sqlite"} }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Errorf("validate() error = nil, want error")
			}
		})
	}
}
