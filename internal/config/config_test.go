package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KB_ENDPOINT", "https://kb.example.com")
	t.Setenv("KB_ID", "kb-1")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("MAIL_FROM", "bot@example.com")
	t.Setenv("MAIL_TO", "support@example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Dialog.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Dialog.MaxRetries)
	}
	if cfg.Dialog.AnswerDelay != time.Second {
		t.Errorf("Expected default answer delay 1s, got %v", cfg.Dialog.AnswerDelay)
	}
	if cfg.KB.Top != 3 {
		t.Errorf("Expected default KB top 3, got %d", cfg.KB.Top)
	}
	if cfg.Intent.Threshold != 0.7 {
		t.Errorf("Expected default intent threshold 0.7, got %v", cfg.Intent.Threshold)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("Expected default SMTP port 587, got %d", cfg.SMTP.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DIALOG_ANSWER_DELAY", "250ms")
	t.Setenv("CONVERSATION_TTL", "2h")
	t.Setenv("SMTP_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.Dialog.AnswerDelay != 250*time.Millisecond {
		t.Errorf("Expected answer delay 250ms, got %v", cfg.Dialog.AnswerDelay)
	}
	if cfg.ConversationTTL != 2*time.Hour {
		t.Errorf("Expected conversation TTL 2h, got %v", cfg.ConversationTTL)
	}
	if !cfg.SMTP.SSL {
		t.Error("Expected SMTP SSL enabled")
	}
}

func TestLoad_MissingKBEndpoint(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KB_ENDPOINT", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error for missing KB endpoint")
	}
}

func TestValidate_IntentThresholdRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTENT_THRESHOLD", "1.5")

	if _, err := Load(); err == nil {
		t.Error("Expected error for out-of-range intent threshold")
	}
}

func TestValidate_IntentAppIDRequiredWithEndpoint(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTENT_ENDPOINT", "https://intent.example.com")
	t.Setenv("INTENT_APP_ID", "")

	if _, err := Load(); err == nil {
		t.Error("Expected error for intent endpoint without app id")
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"ON", false, true},
		{"false", true, false},
		{"0", true, false},
		{"garbage", true, true},
	}

	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := getEnvBool("TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}
}
