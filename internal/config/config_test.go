package config

import (
	"testing"
	"time"
)

func TestParse_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ALLOWED_USERS", "1:2")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("EXPLAIN_TRIGGERS", "why,подробнее")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("default provider: %s", cfg.LLMProvider)
	}
	if cfg.HistoryBackend != HistoryMemory || cfg.HistoryLimit != 10 {
		t.Fatalf("history defaults: %s %d", cfg.HistoryBackend, cfg.HistoryLimit)
	}
	if len(cfg.AllowedUsers) != 2 || cfg.AllowedUsers[1] != 2 {
		t.Fatalf("allowed users: %+v", cfg.AllowedUsers)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.PollMaxAttempts != 60 || cfg.PollMaxWait != 2*time.Minute {
		t.Fatalf("poll bounds: %v %d %v", cfg.PollInterval, cfg.PollMaxAttempts, cfg.PollMaxWait)
	}
	if len(cfg.ExplainTriggers) != 2 || cfg.ExplainTriggers[1] != "подробнее" {
		t.Fatalf("triggers: %+v", cfg.ExplainTriggers)
	}
}

func TestParse_MissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	if _, err := Parse(); err == nil {
		t.Fatalf("expected error without bot token")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			LLMProvider:     ProviderOpenAI,
			OpenAIAPIKey:    "k",
			HistoryBackend:  HistoryMemory,
			HistoryLimit:    10,
			PollInterval:    time.Second,
			PollMaxAttempts: 5,
			PollMaxWait:     time.Minute,
		}
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	noAssistant := base()
	noAssistant.LLMProvider = ProviderAssistant
	if err := noAssistant.Validate(); err == nil {
		t.Fatalf("assistant provider without assistant id accepted")
	}

	badBackend := base()
	badBackend.HistoryBackend = "mongo"
	if err := badBackend.Validate(); err == nil {
		t.Fatalf("unknown history backend accepted")
	}

	badLimit := base()
	badLimit.HistoryLimit = 0
	if err := badLimit.Validate(); err == nil {
		t.Fatalf("zero history limit accepted")
	}

	badPoll := base()
	badPoll.PollMaxAttempts = 0
	if err := badPoll.Validate(); err == nil {
		t.Fatalf("zero poll attempts accepted")
	}
}

func TestLocation_Fallback(t *testing.T) {
	c := Config{Timezone: "Not/AZone"}
	if c.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}
