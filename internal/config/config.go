// Package config provides configuration management for the bibliographic fetch service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fetch service.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Server contains HTTP facade settings.
	Server ServerConfig `mapstructure:"server"`
	// Cache contains on-disk cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Providers contains provider API configurations.
	Providers ProvidersConfig `mapstructure:"providers"`
	// CredentialDir is an extra directory searched for per-provider
	// credential files (crossref.yaml, scopus.yaml).
	CredentialDir string `mapstructure:"credential_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// ServerConfig holds HTTP facade configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// Port is the HTTP server port (default: 8080).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig holds on-disk cache configuration.
type CacheConfig struct {
	// Dir is the root cache directory. Each provider gets a subdirectory.
	Dir string `mapstructure:"dir"`
	// Compression enables gzip compression of cache entries.
	Compression bool `mapstructure:"compression"`
	// MaxAge is the entry age after which reads are treated as misses.
	// Zero means entries never expire.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// ProvidersConfig holds configuration for all provider APIs.
type ProvidersConfig struct {
	// Crossref contains Crossref API settings.
	Crossref ProviderConfig `mapstructure:"crossref"`
	// Scopus contains Scopus API settings.
	Scopus ProviderConfig `mapstructure:"scopus"`
}

// ProviderConfig holds configuration for a single provider API.
type ProviderConfig struct {
	// Enabled controls whether this provider is used.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the API key. Loaded from the environment
	// (e.g. BIBFETCH_PROVIDERS_SCOPUS_API_KEY) or a credential file,
	// never from config.yaml.
	APIKey string `mapstructure:"-"`
	// Mailto is the contact email for courtesy-pool access.
	// Loaded like APIKey.
	Mailto string `mapstructure:"-"`
	// Timeout is the per-request timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the maximum burst of requests allowed without pacing delay.
	BurstSize int `mapstructure:"burst_size"`
	// PageSize is the number of records requested per page.
	PageSize int `mapstructure:"page_size"`
	// MaxResults is the maximum records a single query may accumulate
	// before the fetch is deliberately truncated.
	MaxResults int `mapstructure:"max_results"`
	// MaxRetries is the maximum retry attempts for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BIBFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bibfetch")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets come exclusively from the environment or the well-known
	// credential files. The fields use mapstructure:"-" so config.yaml
	// cannot set them.
	loadCredentials(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadCredentials populates secret fields from environment variables,
// falling back to the per-provider credential files at well-known paths.
func loadCredentials(cfg *Config) {
	cfg.Providers.Scopus.APIKey = os.Getenv("BIBFETCH_PROVIDERS_SCOPUS_API_KEY")
	cfg.Providers.Crossref.Mailto = os.Getenv("BIBFETCH_PROVIDERS_CROSSREF_MAILTO")

	if cfg.Providers.Scopus.APIKey == "" {
		cfg.Providers.Scopus.APIKey = credentialFromFile("scopus", cfg.CredentialDir, "X-ELS-APIKey")
	}
	if cfg.Providers.Crossref.Mailto == "" {
		mailto := credentialFromFile("crossref", cfg.CredentialDir, "mailto", "email")
		if strings.Contains(mailto, "@") {
			cfg.Providers.Crossref.Mailto = mailto
		}
	}
}

// credentialPaths returns the well-known locations probed for a provider's
// credential file, in priority order.
func credentialPaths(provider, extraDir string) []string {
	name := provider + ".yaml"
	paths := []string{name}
	if extraDir != "" {
		paths = append(paths, filepath.Join(extraDir, name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bibfetch", name))
	}
	return paths
}

// credentialFromFile reads the first matching key from the provider's
// credential YAML file. Returns "" when no file or key is found; a missing
// credential file is never an error at this layer.
func credentialFromFile(provider, extraDir string, keys ...string) string {
	for _, path := range credentialPaths(provider, extraDir) {
		f, err := os.Open(path)
		if err != nil {
			continue
		}

		kv := viper.New()
		kv.SetConfigType("yaml")
		err = kv.ReadConfig(f)
		f.Close()
		if err != nil {
			continue
		}

		for _, key := range keys {
			if val := strings.TrimSpace(kv.GetString(key)); val != "" {
				return val
			}
		}
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Cache defaults
	v.SetDefault("cache.dir", defaultCacheDir())
	v.SetDefault("cache.compression", true)
	v.SetDefault("cache.max_age", "0s")

	// Crossref defaults. The polite pool allows roughly 50 req/sec but the
	// public pool is much lower, so stay conservative.
	v.SetDefault("providers.crossref.enabled", true)
	v.SetDefault("providers.crossref.base_url", "https://api.crossref.org/works")
	v.SetDefault("providers.crossref.timeout", "30s")
	v.SetDefault("providers.crossref.rate_limit", 10.0)
	v.SetDefault("providers.crossref.burst_size", 20)
	v.SetDefault("providers.crossref.page_size", 100)
	v.SetDefault("providers.crossref.max_results", 10000)
	v.SetDefault("providers.crossref.max_retries", 3)
	v.SetDefault("providers.crossref.retry_delay", "1s")

	// Scopus defaults. Institutional access typically allows 2-3 req/sec.
	v.SetDefault("providers.scopus.enabled", false)
	v.SetDefault("providers.scopus.base_url", "https://api.elsevier.com/content")
	v.SetDefault("providers.scopus.timeout", "30s")
	v.SetDefault("providers.scopus.rate_limit", 2.0)
	v.SetDefault("providers.scopus.burst_size", 5)
	v.SetDefault("providers.scopus.page_size", 25)
	v.SetDefault("providers.scopus.max_results", 5000)
	v.SetDefault("providers.scopus.max_retries", 3)
	v.SetDefault("providers.scopus.retry_delay", "1s")
}

// defaultCacheDir returns the default root cache directory.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "bibfetch")
	}
	return ".bibfetch-cache"
}

// Address returns the HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("cache directory is required")
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache max_age must not be negative")
	}

	for name, pc := range map[string]ProviderConfig{
		"crossref": c.Providers.Crossref,
		"scopus":   c.Providers.Scopus,
	} {
		if pc.RateLimit <= 0 {
			return fmt.Errorf("provider %s: rate_limit must be positive", name)
		}
		if pc.BurstSize <= 0 {
			return fmt.Errorf("provider %s: burst_size must be positive", name)
		}
		if pc.MaxResults <= 0 {
			return fmt.Errorf("provider %s: max_results must be positive", name)
		}
		if pc.MaxRetries < 0 {
			return fmt.Errorf("provider %s: max_retries must not be negative", name)
		}
	}

	return nil
}
