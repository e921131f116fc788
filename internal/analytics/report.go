package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"match-chatter/internal/logging"
	"match-chatter/internal/storage"
)

// Reporter builds the daily statistics from the interaction log.
type Reporter struct {
	rec    storage.Recorder
	logger *slog.Logger
	now    func() time.Time

	// Notify, when set, receives the rendered summary.
	Notify func(ctx context.Context, summary string) error
}

func NewReporter(rec storage.Recorder, logger *slog.Logger) *Reporter {
	return &Reporter{rec: rec, logger: logging.OrDefault(logger), now: time.Now}
}

// Run reports on the current UTC day.
func (r *Reporter) Run(ctx context.Context) error {
	events, err := r.rec.LoadInteractions()
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}
	stats := AnalyzeDailyLogs(events, r.now().UTC())
	summary := stats.GenerateReportSummary()
	r.logger.Info("daily report",
		"date", stats.Date,
		"messages", stats.TotalMessages,
		"sessions", stats.UniqueSessions,
		"failures", stats.Failures,
		"timeouts", stats.Timeouts,
		"rejected", stats.Rejected)

	if r.Notify != nil {
		if err := r.Notify(ctx, summary); err != nil {
			return fmt.Errorf("notify report: %w", err)
		}
	}
	return nil
}
