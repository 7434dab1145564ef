package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"guardbot/internal/bannedterms"
	"guardbot/internal/genai"
	"guardbot/internal/messages"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Token       string `env:"TOKEN"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`

	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	RateMaxMessages int           `env:"RATE_MAX_MESSAGES" envDefault:"30"`
	BannedTerms     []string      `env:"BANNED_TERMS" envSeparator:","`
	WarningTTL      time.Duration `env:"WARNING_TTL" envDefault:"10s"`
	MaxBanDuration  time.Duration `env:"MAX_BAN_DURATION" envDefault:"720h"`
	ExemptCacheTTL  time.Duration `env:"EXEMPT_CACHE_TTL" envDefault:"5m"`
	CommandPrefix   string        `env:"COMMAND_PREFIX" envDefault:"!"`

	GeminiAPIKey            string        `env:"GEMINI_API_KEY"`
	GeminiAPIKey2           string        `env:"GEMINI_API_KEY_2"`
	GeminiAPIKey3           string        `env:"GEMINI_API_KEY_3"`
	GeminiModel             string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-preview-09-2025"`
	GeminiBaseURL           string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiSystemInstruction string        `env:"GEMINI_SYSTEM_INSTRUCTION"`
	AskLimit                int64         `env:"ASK_LIMIT" envDefault:"5"`
	AskWindow               time.Duration `env:"ASK_WINDOW" envDefault:"1m"`
	AskTimeout              time.Duration `env:"ASK_TIMEOUT" envDefault:"3m"`
	ChatTriggerPrefix       string        `env:"CHAT_TRIGGER_PREFIX" envDefault:"ボット、"`

	KeywordResponses map[string]string `env:"KEYWORD_RESPONSES" envSeparator:";" envKeyValSeparator:"="`

	AuthRoleID            string `env:"AUTH_ROLE_ID"`
	GrantRoleID           string `env:"GRANT_ROLE_ID"`
	TargetEmoji           string `env:"TARGET_EMOJI" envDefault:"✅"`
	NotificationChannelID string `env:"NOTIFICATION_CHANNEL_ID"`
	AuditChannelID        string `env:"AUDIT_CHANNEL_ID"`

	EnableTelemetry bool   `env:"ENABLE_TELEMETRY" envDefault:"false"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// DefaultKeywordResponses are used when KEYWORD_RESPONSES is unset.
var DefaultKeywordResponses = map[string]string{
	"ありがとう": "どういたしまして！お役に立てて嬉しいです。",
	"さよなら":  "またね！良い一日を！",
}

var ErrMissingToken = errors.New("TOKEN is required")

func LoadConfig() (*Config, error) {
	return load(true)
}

// LoadOfflineConfig is LoadConfig for commands that never connect to the
// gateway, so TOKEN may be unset.
func LoadOfflineConfig() (*Config, error) {
	return load(false)
}

func load(requireToken bool) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if requireToken && strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.BannedTerms) == 0 {
		c.BannedTerms = append([]string(nil), bannedterms.DefaultTerms...)
	}
	if len(c.KeywordResponses) == 0 {
		c.KeywordResponses = DefaultKeywordResponses
	}
	if c.GeminiSystemInstruction == "" {
		c.GeminiSystemInstruction = messages.DefaultSystemInstruction
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW must be positive, got %s", c.RateWindow))
	}
	if c.RateMaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("RATE_MAX_MESSAGES must be positive, got %d", c.RateMaxMessages))
	}
	if c.WarningTTL < 0 {
		errs = append(errs, fmt.Errorf("WARNING_TTL must not be negative, got %s", c.WarningTTL))
	}
	if c.MaxBanDuration <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BAN_DURATION must be positive, got %s", c.MaxBanDuration))
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be empty"))
	}
	if (c.AuthRoleID == "") != (c.GrantRoleID == "") {
		errs = append(errs, errors.New("AUTH_ROLE_ID and GRANT_ROLE_ID must be set together"))
	}
	return errors.Join(errs...)
}

// Credentials lists the generation keys in fallback order. Empty keys are
// kept so callers can report which slots are missing.
func (c *Config) Credentials() []genai.Credential {
	return []genai.Credential{
		{Label: "GEMINI_API_KEY", Key: c.GeminiAPIKey},
		{Label: "GEMINI_API_KEY_2", Key: c.GeminiAPIKey2},
		{Label: "GEMINI_API_KEY_3", Key: c.GeminiAPIKey3},
	}
}

func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
