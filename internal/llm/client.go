package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a request/response completion service.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// RunStatus is the lifecycle state of a job-style completion.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunExpired        RunStatus = "expired"
	RunRequiresAction RunStatus = "requires_action"
	RunIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether polling must stop at this status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunQueued, RunInProgress, RunCancelling:
		return false
	default:
		return true
	}
}

// ThreadClient is a job-style completion service: messages go to a remote thread,
// a run is started against it and polled until it reaches a terminal status.
type ThreadClient interface {
	CreateThread(ctx context.Context) (string, error)
	SubmitRun(ctx context.Context, threadID, content, instructions string) (string, error)
	RunStatus(ctx context.Context, threadID, runID string) (RunStatus, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	LatestReply(ctx context.Context, threadID, runID string) (string, error)
}
