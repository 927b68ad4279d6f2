package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	RuntimeHTTP   = "http"
	RuntimeLambda = "lambda"
)

// Config is the process-wide configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	PioneerAPIKey string `env:"PIONEER_API_KEY"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	ParamPrefix   string `env:"PARAM_PREFIX"`

	Port        int    `env:"BACKEND_PORT" envDefault:"8000"`
	RuntimeMode string `env:"RUNTIME_MODE" envDefault:"http"`

	PioneerBaseURL string `env:"PIONEER_BASE_URL" envDefault:"https://api.fastino.ai"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	OpenAIModel    string `env:"OPENAI_MODEL" envDefault:"gpt-4.1"`

	SummaryMaxChars      int  `env:"SUMMARY_MAX_CHARS" envDefault:"1000"`
	ContextChunksK       int  `env:"CONTEXT_CHUNKS_K" envDefault:"5"`
	KnowledgeToolEnabled bool `env:"KNOWLEDGE_TOOL_ENABLED" envDefault:"true"`

	PioneerReadTimeout     time.Duration `env:"PIONEER_READ_TIMEOUT" envDefault:"10s"`
	PioneerIngestTimeout   time.Duration `env:"PIONEER_INGEST_TIMEOUT" envDefault:"30s"`
	PioneerRegisterTimeout time.Duration `env:"PIONEER_REGISTER_TIMEOUT" envDefault:"30s"`
	PioneerQueryTimeout    time.Duration `env:"PIONEER_QUERY_TIMEOUT" envDefault:"180s"`
	OpenAITimeout          time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`

	IngestFailureTable string `env:"INGEST_FAILURE_TABLE"`

	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"pioneer_chat"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	return Parse(env.Options{})
}

// Parse reads configuration using opts (tests pass an explicit Environment).
func Parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.RuntimeMode = strings.ToLower(strings.TrimSpace(cfg.RuntimeMode))
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	cfg.PioneerAPIKey = strings.TrimSpace(cfg.PioneerAPIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	return cfg, nil
}

// SecretSource resolves a named secret, e.g. from SSM.
type SecretSource func(ctx context.Context, name string) (string, error)

// PioneerKeyParam and OpenAIKeyParam are the parameter names used under
// ParamPrefix when secrets are not set in the environment.
func (c Config) PioneerKeyParam() string { return c.ParamPrefix + "/pioneer-api-key" }
func (c Config) OpenAIKeyParam() string  { return c.ParamPrefix + "/openai-api-key" }

// NeedsSecrets reports whether any secret must come from the parameter store.
func (c Config) NeedsSecrets() bool {
	return c.PioneerAPIKey == "" || c.OpenAIAPIKey == ""
}

// ResolveSecrets fills missing secrets from src. It is a no-op when both are
// already present or no ParamPrefix is configured.
func (c Config) ResolveSecrets(ctx context.Context, src SecretSource) (Config, error) {
	if !c.NeedsSecrets() || c.ParamPrefix == "" || src == nil {
		return c, nil
	}
	if c.PioneerAPIKey == "" {
		v, err := src(ctx, c.PioneerKeyParam())
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve pioneer api key: %w", err)
		}
		c.PioneerAPIKey = v
	}
	if c.OpenAIAPIKey == "" {
		v, err := src(ctx, c.OpenAIKeyParam())
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve openai api key: %w", err)
		}
		c.OpenAIAPIKey = v
	}
	return c, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.PioneerAPIKey == "" {
		errs = append(errs, errors.New("PIONEER_API_KEY is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.RuntimeMode != RuntimeHTTP && c.RuntimeMode != RuntimeLambda {
		errs = append(errs, fmt.Errorf("invalid RUNTIME_MODE %q (expected http|lambda)", c.RuntimeMode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid BACKEND_PORT %d", c.Port))
	}
	if c.SummaryMaxChars <= 0 {
		errs = append(errs, errors.New("SUMMARY_MAX_CHARS must be positive"))
	}
	if c.ContextChunksK <= 0 {
		errs = append(errs, errors.New("CONTEXT_CHUNKS_K must be positive"))
	}
	if strings.TrimSpace(c.OpenAIModel) == "" {
		errs = append(errs, errors.New("OPENAI_MODEL must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
