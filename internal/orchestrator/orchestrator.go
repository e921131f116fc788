// Package orchestrator runs one completion per session at a time, records the turn in
// history and converts every backend failure into ErrService or ErrTimeout.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"match-chatter/internal/history"
	"match-chatter/internal/logging"
	"match-chatter/internal/prompt"
	"match-chatter/internal/session"
)

const instrumentationName = "match-chatter/orchestrator"

// Result is the assistant reply of one completion.
type Result struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Backend performs the completion call itself. Implementations return errors wrapping
// ErrService or ErrTimeout; anything else is treated as ErrService.
type Backend interface {
	Complete(ctx context.Context, sess *session.Session, p prompt.Prompt) (Result, error)
}

type Orchestrator struct {
	backend  Backend
	registry *session.Registry
	store    history.Store
	logger   *slog.Logger
	tracer   trace.Tracer

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = logging.OrDefault(l) } }

func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithMeter registers the completion instruments on m.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.instruments(m) }
}

func New(backend Backend, reg *session.Registry, store history.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		registry: reg,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	o.instruments(otel.Meter(instrumentationName))
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) instruments(m metric.Meter) {
	requests, err := m.Int64Counter("completion.requests",
		metric.WithDescription("Completions by outcome"))
	if err != nil {
		o.logger.Warn("failed to create counter", "error", err)
		requests = noop.Int64Counter{}
	}
	duration, err := m.Float64Histogram("completion.duration",
		metric.WithDescription("Completion duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		o.logger.Warn("failed to create histogram", "error", err)
		duration = noop.Float64Histogram{}
	}
	o.requests = requests
	o.duration = duration
}

// Complete runs p for sess while holding the session's single-flight lock. The user
// turn is appended to history whatever the outcome; the assistant turn only on success.
func (o *Orchestrator) Complete(ctx context.Context, sess *session.Session, p prompt.Prompt) (Result, error) {
	if !o.registry.TryAcquire(sess.ID) {
		o.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		return Result{}, fmt.Errorf("%w: %s", ErrConcurrentRequest, sess.ID)
	}
	defer o.registry.Release(sess.ID)

	ctx, span := o.tracer.Start(ctx, "completion", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("persona", p.Persona.String()),
	))
	defer span.End()

	start := time.Now()
	res, err := o.backend.Complete(ctx, sess, p)
	err = classify(err)
	elapsed := time.Since(start)

	// history writes must land even when the caller's context is already done
	storeCtx := context.WithoutCancel(ctx)
	if appendErr := o.store.Append(storeCtx, sess.ID, p.User); appendErr != nil {
		o.logger.Warn("failed to append user turn", "session_id", sess.ID, "error", appendErr)
	}

	outcome := outcomeOf(err)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("persona", p.Persona.String()))
	o.requests.Add(ctx, 1, attrs)
	o.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		o.logger.Error("completion failed",
			"session_id", sess.ID, "outcome", outcome, "elapsed_ms", elapsed.Milliseconds(), "error", err)
		return Result{}, err
	}

	if appendErr := o.store.Append(storeCtx, sess.ID, history.AssistantTurn(res.Text)); appendErr != nil {
		o.logger.Warn("failed to append assistant turn", "session_id", sess.ID, "error", appendErr)
	}
	o.logger.Info("completion finished",
		"session_id", sess.ID, "persona", p.Persona.String(), "model", res.Model,
		"prompt_tokens", res.PromptTokens, "completion_tokens", res.CompletionTokens,
		"elapsed_ms", elapsed.Milliseconds())
	return res, nil
}

// classify wraps errors that are neither ErrService nor ErrTimeout into ErrService.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrService) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrService, err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "service_error"
	}
}
