// Package config provides configuration loading and validation for the newsroom service.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/newsroom/internal/ingestion"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load and Default.
const (
	DefaultPort              = 8080
	DefaultSessionIdleTTL    = 2 * time.Hour
	DefaultWebhookTimeout    = 60 * time.Second
	DefaultIngestConcurrency = 4
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultJWTIssuer         = "newsroom"
	DefaultJWTExpiration     = 24 // hours
)

// Duration is a time.Duration that decodes from strings like "90s" in YAML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts a duration string or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// UnmarshalJSON accepts a duration string or an integer number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// IngestionConfig configures the news ingestion webhook.
type IngestionConfig struct {
	WebhookURL    string   `json:"webhook_url,omitempty" yaml:"webhook_url"`
	WebhookSecret string   `json:"webhook_secret,omitempty" yaml:"webhook_secret"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout"`
	Concurrency   int      `json:"concurrency,omitempty" yaml:"concurrency"`
}

// SessionConfig configures authoring session lifetimes.
type SessionConfig struct {
	// ProcessingTimeout moves a stalled processing stage to error. Zero disables the watchdog.
	ProcessingTimeout Duration `json:"processing_timeout,omitempty" yaml:"processing_timeout"`
	IdleTTL           Duration `json:"idle_ttl,omitempty" yaml:"idle_ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level"`
	Format string `json:"format,omitempty" yaml:"format"`
	File   string `json:"file,omitempty" yaml:"file"`
}

// Config is the service configuration, loaded from a YAML or JSON file and overridden from env.
type Config struct {
	Port        int                    `json:"port,omitempty" yaml:"port"`
	DatabaseURL string                 `json:"database_url,omitempty" yaml:"database_url"`
	Ingestion   IngestionConfig        `json:"ingestion" yaml:"ingestion"`
	Sessions    SessionConfig          `json:"sessions" yaml:"sessions"`
	Log         LogConfig              `json:"log" yaml:"log"`
	Sources     []ingestion.NewsSource `json:"sources,omitempty" yaml:"sources"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a file. Files ending in .yaml or .yml are parsed as YAML,
// anything else as JSON. Defaults fill fields the file leaves empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Sessions.IdleTTL == 0 {
		c.Sessions.IdleTTL = Duration(DefaultSessionIdleTTL)
	}
	if c.Ingestion.Timeout == 0 {
		c.Ingestion.Timeout = Duration(DefaultWebhookTimeout)
	}
	if c.Ingestion.Concurrency == 0 {
		c.Ingestion.Concurrency = DefaultIngestConcurrency
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %v", err)
		}
		c.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("INGESTION_WEBHOOK_URL"); v != "" {
		c.Ingestion.WebhookURL = v
	}
	if v := os.Getenv("INGESTION_WEBHOOK_SECRET"); v != "" {
		c.Ingestion.WebhookSecret = v
	}
	if v := os.Getenv("PROCESSING_TIMEOUT"); v != "" {
		if err := c.Sessions.ProcessingTimeout.parse(v); err != nil {
			return fmt.Errorf("invalid PROCESSING_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("SESSION_IDLE_TTL"); v != "" {
		if err := c.Sessions.IdleTTL.parse(v); err != nil {
			return fmt.Errorf("invalid SESSION_IDLE_TTL: %w", err)
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	return nil
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535, got %d", c.Port)
	}
	if c.Sessions.ProcessingTimeout < 0 {
		return fmt.Errorf("config error: 'sessions.processing_timeout' must be non-negative")
	}
	if c.Sessions.IdleTTL < 0 {
		return fmt.Errorf("config error: 'sessions.idle_ttl' must be non-negative")
	}
	if c.Ingestion.Timeout < 0 {
		return fmt.Errorf("config error: 'ingestion.timeout' must be non-negative")
	}
	if c.Ingestion.Concurrency < 0 {
		return fmt.Errorf("config error: 'ingestion.concurrency' must be non-negative")
	}
	if c.Ingestion.WebhookURL != "" {
		u, err := url.Parse(c.Ingestion.WebhookURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config error: 'ingestion.webhook_url' must be an absolute http(s) URL: %s", c.Ingestion.WebhookURL)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config error: 'log.format' must be text or json, got %q", c.Log.Format)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" || s.URL == "" {
			return fmt.Errorf("config error: source %d needs both 'id' and 'url'", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("config error: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Source returns the configured news source with the given ID.
func (c *Config) Source(id string) (ingestion.NewsSource, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return ingestion.NewsSource{}, false
}

// JWTConfig holds configuration for actor token signing and validation.
type JWTConfig struct {
	Secret          string
	Issuer          string
	ExpirationHours int
}

// NewJWTConfig reads JWT_SECRET (required), JWT_ISSUER and JWT_EXPIRATION_HOURS.
// The secret is never read from the config file.
func NewJWTConfig() (*JWTConfig, error) {
	cfg := &JWTConfig{
		Secret:          os.Getenv("JWT_SECRET"),
		Issuer:          DefaultJWTIssuer,
		ExpirationHours: DefaultJWTExpiration,
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("JWT_EXPIRATION_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		cfg.ExpirationHours = hours
	}
	if cfg.ExpirationHours < 1 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", cfg.ExpirationHours)
	}
	return cfg, nil
}
