package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"match-chatter/internal/logging"
)

// DailyReportSpec - ежедневно в 21:00 UTC
const DailyReportSpec = "0 21 * * *"

// Scheduler управляет запланированными задачами
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	jobs   int
}

// New создает новый планировщик
func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.OrDefault(logger),
	}
}

// Add регистрирует задачу по cron-выражению из пяти полей
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("job %s: nil function", name)
	}
	if _, err := s.cron.AddFunc(spec, s.wrap(name, fn)); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.jobs++
	return nil
}

// SetReportFunction устанавливает функцию для генерации ежедневных отчетов
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) error {
	return s.Add("daily_report", DailyReportSpec, f)
}

func (s *Scheduler) wrap(name string, fn func(ctx context.Context) error) func() {
	return func() {
		start := time.Now()
		s.logger.Info("scheduled job triggered", "job", name)
		if err := fn(s.ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Info("scheduled job finished", "job", name, "elapsed_ms", time.Since(start).Milliseconds())
	}
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	if s.jobs == 0 {
		s.logger.Warn("no jobs registered, scheduler not started")
		return
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.jobs)
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

// IsRunning проверяет, есть ли запланированные задачи
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
