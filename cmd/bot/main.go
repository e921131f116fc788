package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"match-chatter/internal/analytics"
	"match-chatter/internal/auth"
	"match-chatter/internal/config"
	"match-chatter/internal/engine"
	"match-chatter/internal/enrich"
	"match-chatter/internal/history"
	"match-chatter/internal/llm"
	"match-chatter/internal/logging"
	"match-chatter/internal/orchestrator"
	"match-chatter/internal/prompt"
	"match-chatter/internal/scheduler"
	"match-chatter/internal/session"
	"match-chatter/internal/storage"
	"match-chatter/internal/telegram"
	"match-chatter/internal/telemetry"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	logger, logCloser, err := logging.New(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryDir, logger)
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry()

	store, storeCloser, err := history.Open(ctx, string(cfg.HistoryBackend), history.Options{
		Limit:         cfg.HistoryLimit,
		SQLitePath:    cfg.SQLitePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisTTL:      cfg.RedisTTL,
	})
	if err != nil {
		logger.Error("failed to open history store", "backend", cfg.HistoryBackend, "error", err)
		os.Exit(1)
	}
	defer storeCloser.Close()
	logger.Info("history store ready", "backend", cfg.HistoryBackend, "limit", cfg.HistoryLimit)

	registry, backend, err := newBackend(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create completion backend", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}

	var gateway enrich.Gateway = enrich.Nop{}
	if cfg.FootballAPIKey != "" {
		gateway = enrich.NewClient(cfg.FootballAPIKey, cfg.FootballAPIURL, cfg.EnrichTimeout, logger)
	}

	personas := prompt.LoadPersonas(cfg.BriefPromptPath, cfg.DetailedPromptPath)
	assembler := prompt.NewAssembler(store, cfg.HistoryLimit, personas, prompt.NewClassifier(cfg.ExplainTriggers))
	orch := orchestrator.New(backend, registry, store,
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(tracer),
		orchestrator.WithMeter(meter),
	)

	opts := []engine.Option{
		engine.WithGateway(gateway),
		engine.WithLogger(logger),
		engine.WithLocation(cfg.Location()),
	}
	var rec storage.Recorder
	if cfg.InteractionsLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.InteractionsLogPath)
		if err != nil {
			logger.Warn("failed to init interaction recorder", "error", err)
		} else {
			defer fr.Close()
			rec = fr
			opts = append(opts, engine.WithRecorder(fr))
		}
	}
	eng := engine.New(registry, assembler, orch, opts...)

	sched := scheduler.New(logger)
	if rec != nil {
		reporter := analytics.NewReporter(rec, logger)
		reporter.Notify = func(_ context.Context, summary string) error {
			logger.Info("daily report summary", "summary", summary)
			return nil
		}
		if err := sched.SetReportFunction(reporter.Run); err != nil {
			logger.Warn("failed to schedule daily report", "error", err)
		}
	}
	if c, ok := store.(history.Compactor); ok && cfg.HistoryCompactSchedule != "" {
		err := sched.Add("history_compact", cfg.HistoryCompactSchedule, func(ctx context.Context) error {
			n, err := c.Compact(ctx)
			if err == nil {
				logger.Info("history compacted", "removed", n)
			}
			return err
		})
		if err != nil {
			logger.Warn("failed to schedule history compaction", "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		allowRepo = auth.NewFileRepository(cfg.AllowlistFilePath)
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		logger.Error("failed to init allow-list", "error", err)
		os.Exit(1)
	}
	logger.Info("allow-list ready", "users", authSvc.Len())

	bot, err := telegram.New(cfg.TelegramBotToken, eng, authSvc, cfg.MessageParseMode, logger)
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	logger.Info("bot started", "provider", cfg.LLMProvider)
	bot.Start(ctx)
	logger.Info("bot stopped")
}

// newBackend picks the completion backend. Only the assistant provider keeps a remote
// thread per session, so only it gets a registry with a thread allocator.
func newBackend(cfg *config.Config, store history.Store, logger *slog.Logger) (*session.Registry, orchestrator.Backend, error) {
	factory := llm.NewFactory(cfg)

	if cfg.LLMProvider == config.ProviderAssistant {
		threads, err := factory.CreateThreadClient()
		if err != nil {
			return nil, nil, err
		}
		policy := orchestrator.PollPolicy{
			Interval: cfg.PollInterval,
			MaxPolls: cfg.PollMaxAttempts,
			MaxWait:  cfg.PollMaxWait,
		}
		return session.NewRegistry(store, threads, logger), orchestrator.NewJobBackend(threads, policy, logger), nil
	}

	model := cfg.OpenAIModel
	if cfg.LLMProvider == config.ProviderAnthropic {
		model = cfg.AnthropicModel
	}
	client, err := factory.CreateClient(string(cfg.LLMProvider), model)
	if err != nil {
		return nil, nil, err
	}
	return session.NewRegistry(store, nil, logger), orchestrator.NewSyncBackend(client, cfg.PollMaxWait), nil
}
