// Package engine wires extraction, enrichment, prompt assembly and completion into
// the per-message conversation flow.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"match-chatter/internal/enrich"
	"match-chatter/internal/extract"
	"match-chatter/internal/logging"
	"match-chatter/internal/orchestrator"
	"match-chatter/internal/prompt"
	"match-chatter/internal/session"
	"match-chatter/internal/storage"
)

// Texts shown to the user when a request fails.
const (
	MsgTimeout    = "Сервис прогнозов отвечает слишком долго. Попробуйте отправить вопрос ещё раз."
	MsgConcurrent = "Я ещё думаю над предыдущим вопросом. Подождите ответа, пожалуйста."
	MsgGeneric    = "Извините, сейчас не получается подготовить прогноз. Попробуйте позже."
)

// Completer runs one completion for a session.
type Completer interface {
	Complete(ctx context.Context, sess *session.Session, p prompt.Prompt) (orchestrator.Result, error)
}

type Reply struct {
	RequestID string
	Text      string
	Persona   prompt.Persona
	Match     extract.MatchInfo
}

type Engine struct {
	registry  *session.Registry
	assembler *prompt.Assembler
	completer Completer
	gateway   enrich.Gateway
	recorder  storage.Recorder
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Engine)

func WithGateway(g enrich.Gateway) Option { return func(e *Engine) { e.gateway = g } }

// WithRecorder logs every handled message, including rejected and failed ones.
func WithRecorder(r storage.Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = logging.OrDefault(l) } }

// WithLocation sets the zone relative dates ("завтра") are resolved in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func New(reg *session.Registry, asm *prompt.Assembler, c Completer, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		assembler: asm,
		completer: c,
		gateway:   enrich.Nop{},
		logger:    slog.Default(),
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle answers one user message. Returned errors wrap one of the orchestrator
// sentinels; UserMessage turns them into reply text.
func (e *Engine) Handle(ctx context.Context, userID, text string) (Reply, error) {
	reply := Reply{RequestID: uuid.NewString()}
	logger := e.logger.With("request_id", reply.RequestID, "session_id", userID)
	received := e.now()

	// buffered so the goroutine finishes even when the request is rejected
	infoCh := make(chan extract.MatchInfo, 1)
	go func(now time.Time) {
		infoCh <- extract.Extract(text, now)
	}(received.In(e.loc))

	ev := storage.Event{
		Timestamp:   received.UTC(),
		RequestID:   reply.RequestID,
		SessionID:   userID,
		UserMessage: text,
	}

	if e.registry.InFlight(userID) {
		err := fmt.Errorf("%w: %s", orchestrator.ErrConcurrentRequest, userID)
		logger.Info("request rejected, completion in flight")
		e.record(logger, ev, Reply{}, err)
		return Reply{}, err
	}

	sess, err := e.registry.GetOrCreate(ctx, userID)
	if err != nil {
		err = fmt.Errorf("%w: %w", orchestrator.ErrService, err)
		logger.Error("failed to open session", "error", err)
		e.record(logger, ev, Reply{}, err)
		return Reply{}, err
	}

	reply.Match = <-infoCh
	logger.Debug("match extracted",
		"participants", reply.Match.Participants, "date", reply.Match.Date, "time", reply.Match.Time)

	enr := e.enrich(ctx, reply.Match)

	p, err := e.assembler.Assemble(ctx, sess.ID, text, reply.Match, enr)
	if err != nil {
		err = fmt.Errorf("%w: %w", orchestrator.ErrService, err)
		logger.Error("failed to assemble prompt", "error", err)
		e.record(logger, ev, Reply{}, err)
		return Reply{}, err
	}
	reply.Persona = p.Persona
	ev.Persona = p.Persona.String()

	res, err := e.completer.Complete(ctx, sess, p)
	if err != nil {
		e.record(logger, ev, reply, err)
		return reply, err
	}
	reply.Text = res.Text
	e.record(logger, ev, reply, nil)
	logger.Info("request handled", "persona", p.Persona.String(), "elapsed_ms", time.Since(received).Milliseconds())
	return reply, nil
}

// enrich asks the gateway about the home participant, then the away one.
func (e *Engine) enrich(ctx context.Context, info extract.MatchInfo) *enrich.Result {
	for _, team := range []string{info.Home, info.Away} {
		if team == "" {
			continue
		}
		if res, ok := e.gateway.Lookup(ctx, team); ok {
			return res
		}
	}
	return nil
}

// Reset drops the session and its history.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	return e.registry.Reset(ctx, userID)
}

func (e *Engine) record(logger *slog.Logger, ev storage.Event, reply Reply, err error) {
	if e.recorder == nil {
		return
	}
	ev.AssistantResponse = reply.Text
	ev.Outcome = Outcome(err)
	if err != nil {
		ev.Error = err.Error()
	}
	if recErr := e.recorder.AppendInteraction(ev); recErr != nil {
		logger.Warn("failed to record interaction", "error", recErr)
	}
}

// Outcome classifies err for the interaction log.
func Outcome(err error) string {
	switch {
	case err == nil:
		return storage.OutcomeOK
	case errors.Is(err, orchestrator.ErrConcurrentRequest):
		return storage.OutcomeRejected
	case errors.Is(err, orchestrator.ErrTimeout):
		return storage.OutcomeTimeout
	default:
		return storage.OutcomeService
	}
}

// UserMessage maps a Handle error to the text sent back to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, orchestrator.ErrTimeout):
		return MsgTimeout
	case errors.Is(err, orchestrator.ErrConcurrentRequest):
		return MsgConcurrent
	default:
		return MsgGeneric
	}
}
