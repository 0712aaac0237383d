// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LedgerPath  string

	// MessagesPath optionally overrides the embedded message catalog.
	MessagesPath string

	ConversationTTL time.Duration

	Dialog DialogConfig
	KB     KBConfig
	Intent IntentConfig
	SMTP   SMTPConfig
	Mail   MailConfig
}

// DialogConfig controls the escalation dialog.
type DialogConfig struct {
	MaxRetries        int
	MaxInvalidAnswers int
	AnswerDelay       time.Duration
}

// KBConfig addresses the question answering service.
type KBConfig struct {
	Endpoint        string
	KnowledgeBaseID string
	AuthKey         string
	Top             int
	RequestTimeout  time.Duration
}

// IntentConfig addresses the intent classification service. An empty
// endpoint disables classification; every utterance then goes to the
// knowledge base.
type IntentConfig struct {
	Endpoint        string
	AppID           string
	SubscriptionKey string
	Threshold       float64
	RequestTimeout  time.Duration
}

// SMTPConfig addresses the mail relay for escalation tickets.
type SMTPConfig struct {
	Host     string
	Port     int
	SSL      bool
	Username string
	Password string
	Timeout  time.Duration
}

// MailConfig holds the escalation mail addressing.
type MailConfig struct {
	From string
	To   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/helpi.db"),
		LedgerPath:      getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		MessagesPath:    getEnv("MESSAGES_PATH", ""),
		ConversationTTL: getEnvDuration("CONVERSATION_TTL", 24*time.Hour),
		Dialog: DialogConfig{
			MaxRetries:        getEnvInt("DIALOG_MAX_RETRIES", 3),
			MaxInvalidAnswers: getEnvInt("DIALOG_MAX_INVALID_ANSWERS", 3),
			AnswerDelay:       getEnvDuration("DIALOG_ANSWER_DELAY", time.Second),
		},
		KB: KBConfig{
			Endpoint:        getEnv("KB_ENDPOINT", ""),
			KnowledgeBaseID: getEnv("KB_ID", ""),
			AuthKey:         getEnv("KB_AUTH_KEY", ""),
			Top:             getEnvInt("KB_TOP", 3),
			RequestTimeout:  getEnvDuration("KB_TIMEOUT", 5*time.Second),
		},
		Intent: IntentConfig{
			Endpoint:        getEnv("INTENT_ENDPOINT", ""),
			AppID:           getEnv("INTENT_APP_ID", ""),
			SubscriptionKey: getEnv("INTENT_SUBSCRIPTION_KEY", ""),
			Threshold:       getEnvFloat("INTENT_THRESHOLD", 0.7),
			RequestTimeout:  getEnvDuration("INTENT_TIMEOUT", 5*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			SSL:      getEnvBool("SMTP_SSL", false),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			Timeout:  getEnvDuration("SMTP_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			From: getEnv("MAIL_FROM", ""),
			To:   getEnv("MAIL_TO", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_DB_PATH cannot be empty")
	}
	if c.KB.Endpoint == "" {
		return fmt.Errorf("KB_ENDPOINT cannot be empty")
	}
	if c.KB.KnowledgeBaseID == "" {
		return fmt.Errorf("KB_ID cannot be empty")
	}
	if c.Intent.Endpoint != "" && c.Intent.AppID == "" {
		return fmt.Errorf("INTENT_APP_ID cannot be empty when INTENT_ENDPOINT is set")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST cannot be empty")
	}
	if c.Mail.From == "" {
		return fmt.Errorf("MAIL_FROM cannot be empty")
	}
	if c.Mail.To == "" {
		return fmt.Errorf("MAIL_TO cannot be empty")
	}
	if c.Dialog.MaxRetries <= 0 {
		return fmt.Errorf("DIALOG_MAX_RETRIES must be > 0")
	}
	if c.Intent.Threshold <= 0 || c.Intent.Threshold > 1 {
		return fmt.Errorf("INTENT_THRESHOLD must be in (0, 1]")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
