package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"match-chatter/internal/history"
	"match-chatter/internal/llm"
	"match-chatter/internal/logging"
	"match-chatter/internal/prompt"
	"match-chatter/internal/session"
)

// SyncBackend sends the whole prompt in one request/response call.
type SyncBackend struct {
	client  llm.Client
	timeout time.Duration
}

// NewSyncBackend bounds each call by timeout; zero leaves only the caller's deadline.
func NewSyncBackend(client llm.Client, timeout time.Duration) *SyncBackend {
	return &SyncBackend{client: client, timeout: timeout}
}

func (b *SyncBackend) Complete(ctx context.Context, _ *session.Session, p prompt.Prompt) (Result, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	resp, err := b.client.Generate(ctx, toMessages(p.Messages))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrService, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Result{}, fmt.Errorf("%w: empty reply", ErrService)
	}
	return Result{
		Text:             resp.Content,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}, nil
}

func toMessages(turns []history.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// PollPolicy bounds the wait for a job-style run. Both limits apply; whichever is hit
// first ends the wait.
type PollPolicy struct {
	Interval time.Duration
	MaxPolls int
	MaxWait  time.Duration
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = 60
	}
	if p.MaxWait <= 0 {
		p.MaxWait = time.Duration(p.MaxPolls) * p.Interval
	}
	return p
}

const cancelTimeout = 5 * time.Second

// JobBackend submits the user turn to the session's remote thread and polls the run.
// Earlier turns live on the remote thread, so only the new turn and persona are sent.
type JobBackend struct {
	client llm.ThreadClient
	policy PollPolicy
	logger *slog.Logger
}

func NewJobBackend(client llm.ThreadClient, policy PollPolicy, logger *slog.Logger) *JobBackend {
	return &JobBackend{client: client, policy: policy.normalized(), logger: logging.OrDefault(logger)}
}

func (b *JobBackend) Complete(ctx context.Context, sess *session.Session, p prompt.Prompt) (Result, error) {
	threadID := sess.ThreadID()
	if threadID == "" {
		return Result{}, fmt.Errorf("%w: session %s has no thread", ErrService, sess.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, b.policy.MaxWait)
	defer cancel()

	runID, err := b.client.SubmitRun(ctx, threadID, p.User.Content, p.Instructions)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: submit run: %w", ErrTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: submit run: %w", ErrService, err)
	}

	if err := b.wait(ctx, threadID, runID); err != nil {
		return Result{}, err
	}

	reply, err := b.client.LatestReply(ctx, threadID, runID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fetch reply: %w", ErrService, err)
	}
	if strings.TrimSpace(reply) == "" {
		return Result{}, fmt.Errorf("%w: run %s produced no reply", ErrService, runID)
	}
	return Result{Text: reply}, nil
}

// wait polls until the run completes. It never returns with the run still active
// on the remote side without having asked to cancel it.
func (b *JobBackend) wait(ctx context.Context, threadID, runID string) error {
	ticker := time.NewTicker(b.policy.Interval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		status, err := b.client.RunStatus(ctx, threadID, runID)
		switch {
		case err != nil && ctx.Err() != nil:
			b.cancel(threadID, runID)
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case err != nil:
			b.cancel(threadID, runID)
			return fmt.Errorf("%w: poll run: %w", ErrService, err)
		case status == llm.RunCompleted:
			return nil
		case status.Terminal():
			return fmt.Errorf("%w: run %s ended with status %s", ErrService, runID, status)
		}

		if polls >= b.policy.MaxPolls {
			b.cancel(threadID, runID)
			return fmt.Errorf("%w: run %s still %s after %d polls", ErrTimeout, runID, status, polls)
		}

		select {
		case <-ctx.Done():
			b.cancel(threadID, runID)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: run %s exceeded %s", ErrTimeout, runID, b.policy.MaxWait)
			}
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *JobBackend) cancel(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := b.client.CancelRun(ctx, threadID, runID); err != nil {
		b.logger.Warn("failed to cancel run", "thread_id", threadID, "run_id", runID, "error", err)
	}
}
