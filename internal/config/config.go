// Package config provides configuration for the chat proxy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore, e.g. PROXY_UPSTREAM__BASE_URL.
const EnvPrefix = "PROXY_"

// Moderation providers.
const (
	ModerationHTTP   = "http"
	ModerationOpenAI = "openai"
	ModerationNone   = "none"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Upstream   UpstreamConfig   `koanf:"upstream"`
	Moderation ModerationConfig `koanf:"moderation"`
	Log        LogConfig        `koanf:"log"`
	NATS       NATSConfig       `koanf:"nats"`
	Tracing    TracingConfig    `koanf:"tracing"`
	CORS       CORSConfig       `koanf:"cors"`
}

// ServerConfig holds HTTP server settings. A zero WriteTimeout leaves
// streaming responses unbounded.
type ServerConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// UpstreamConfig holds the chat API credentials.
type UpstreamConfig struct {
	BaseURL  string        `koanf:"base_url"`
	BotID    string        `koanf:"bot_id"`
	PATToken string        `koanf:"pat_token"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ModerationConfig selects and configures the moderation backend.
type ModerationConfig struct {
	Provider     string        `koanf:"provider"`
	URL          string        `koanf:"url"`
	Timeout      time.Duration `koanf:"timeout"`
	OpenAIAPIKey string        `koanf:"openai_api_key"`
	OpenAIURL    string        `koanf:"openai_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"`
	Dir   string `koanf:"dir"`
}

// NATSConfig enables the decision stream when URL is set.
type NATSConfig struct {
	URL      string `koanf:"url"`
	Token    string `koanf:"token"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

var defaults = map[string]any{
	"server.port":          "8080",
	"server.read_timeout":  30 * time.Second,
	"server.write_timeout": time.Duration(0),
	"upstream.base_url":    "https://api.coze.cn/v3",
	"upstream.timeout":     time.Duration(0),
	"moderation.provider":  ModerationHTTP,
	"moderation.url":       "http://127.0.0.1:6001",
	"moderation.timeout":   2 * time.Second,
	"log.level":            "info",
	"log.dir":              "logs",
	"tracing.enabled":      false,
	"tracing.endpoint":     "localhost:4318",
	"cors.allowed_origins": []string{"https://*", "http://*"},
}

// Load reads configuration from defaults, then the YAML file at path (if it
// exists), then PROXY_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	cfg.Moderation.URL = strings.TrimRight(cfg.Moderation.URL, "/")

	return &cfg, nil
}

// Validate reports configuration the proxy cannot run without.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Upstream.BotID == "" {
		return errors.New("upstream.bot_id is required")
	}
	if c.Upstream.PATToken == "" {
		return errors.New("upstream.pat_token is required")
	}

	switch c.Moderation.Provider {
	case ModerationHTTP:
		if c.Moderation.URL == "" {
			return errors.New("moderation.url is required for the http provider")
		}
	case ModerationOpenAI:
		if c.Moderation.OpenAIAPIKey == "" {
			return errors.New("moderation.openai_api_key is required for the openai provider")
		}
	case ModerationNone:
	default:
		return fmt.Errorf("unknown moderation provider %q", c.Moderation.Provider)
	}

	if c.Moderation.Timeout <= 0 {
		return errors.New("moderation.timeout must be positive")
	}

	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
