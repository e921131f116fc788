package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderYandex    LLMProvider = "yandex"
	ProviderAnthropic LLMProvider = "anthropic"
	// ProviderAssistant uses the job-style Assistants API (thread + run + poll).
	ProviderAssistant LLMProvider = "assistant"
)

type HistoryBackend string

const (
	HistoryMemory HistoryBackend = "memory"
	HistorySQLite HistoryBackend = "sqlite"
	HistoryRedis  HistoryBackend = "redis"
)

type Config struct {
	TelegramBotToken  string  `env:"TELEGRAM_BOT_TOKEN,required"`
	AllowedUsers      []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AllowlistFilePath string  `env:"ALLOWLIST_FILE_PATH"`

	// LLM settings
	LLMProvider       LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey      string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string      `env:"OPENAI_BASE_URL"`
	OpenAIModel       string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIAssistantID string      `env:"OPENAI_ASSISTANT_ID"`
	YandexOAuthToken  string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID    string      `env:"YANDEX_FOLDER_ID"`
	AnthropicAPIKey   string      `env:"ANTHROPIC_API_KEY"`
	AnthropicModel    string      `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Job polling bounds (assistant provider)
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"60"`
	PollMaxWait     time.Duration `env:"POLL_MAX_WAIT" envDefault:"2m"`

	// History
	HistoryBackend HistoryBackend `env:"HISTORY_BACKEND" envDefault:"memory"`
	HistoryLimit   int            `env:"HISTORY_LIMIT" envDefault:"10"`
	SQLitePath     string         `env:"SQLITE_PATH" envDefault:"data/history.db"`
	RedisAddr      string         `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string         `env:"REDIS_PASSWORD"`
	RedisDB        int            `env:"REDIS_DB" envDefault:"0"`
	RedisTTL       time.Duration  `env:"REDIS_TTL" envDefault:"0s"`

	// Enrichment (football data provider, optional)
	FootballAPIKey string        `env:"FOOTBALL_API_KEY"`
	FootballAPIURL string        `env:"FOOTBALL_API_URL" envDefault:"https://v3.football.api-sports.io"`
	EnrichTimeout  time.Duration `env:"ENRICH_TIMEOUT" envDefault:"5s"`

	// Prompts
	ExplainTriggers    []string `env:"EXPLAIN_TRIGGERS" envSeparator:"," envDefault:"подробн,объясни,поясни,explain,detail"`
	BriefPromptPath    string   `env:"BRIEF_PROMPT_PATH" envDefault:"prompts/brief.txt"`
	DetailedPromptPath string   `env:"DETAILED_PROMPT_PATH" envDefault:"prompts/detailed.txt"`
	Timezone           string   `env:"TIMEZONE" envDefault:"Europe/Moscow"`

	// Storage
	LogFilePath            string `env:"LOG_FILE_PATH" envDefault:"logs/bot.log"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	InteractionsLogPath    string `env:"INTERACTIONS_LOG_PATH" envDefault:"logs/interactions.jsonl"`
	TelemetryDir           string `env:"TELEMETRY_DIR"`
	HistoryCompactSchedule string `env:"HISTORY_COMPACT_SCHEDULE" envDefault:"0 4 * * *"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

// Parse reads the configuration from the environment and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Validate checks that the selected provider and history backend have what they need.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %s", c.LLMProvider)
		}
	case ProviderAssistant:
		if c.OpenAIAPIKey == "" || c.OpenAIAssistantID == "" {
			return fmt.Errorf("OPENAI_API_KEY and OPENAI_ASSISTANT_ID are required for provider %s", c.LLMProvider)
		}
	case ProviderYandex:
		if c.YandexOAuthToken == "" || c.YandexFolderID == "" {
			return fmt.Errorf("YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID are required for provider %s", c.LLMProvider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %s", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}

	switch c.HistoryBackend {
	case HistoryMemory, HistorySQLite, HistoryRedis:
	default:
		return fmt.Errorf("unknown history backend: %s", c.HistoryBackend)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.PollInterval <= 0 || c.PollMaxAttempts <= 0 || c.PollMaxWait <= 0 {
		return fmt.Errorf("poll bounds must be positive")
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
