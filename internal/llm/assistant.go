package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// AssistantClient drives the OpenAI Assistants API: one thread per session,
// one run per user message.
type AssistantClient struct {
	client      *openai.Client
	assistantID string
}

func NewAssistant(apiKey, baseURL, assistantID, referrer, title string) *AssistantClient {
	return &AssistantClient{
		client:      openai.NewClientWithConfig(openAIConfig(apiKey, baseURL, referrer, title)),
		assistantID: assistantID,
	}
}

func (c *AssistantClient) CreateThread(ctx context.Context) (string, error) {
	th, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return th.ID, nil
}

// SubmitRun posts the user message to the thread and starts a run. Instructions are
// passed as additional instructions so the assistant's own prompt stays in effect.
func (c *AssistantClient) SubmitRun(ctx context.Context, threadID, content, instructions string) (string, error) {
	if _, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:            c.assistantID,
		AdditionalInstructions: instructions,
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

func (c *AssistantClient) RunStatus(ctx context.Context, threadID, runID string) (RunStatus, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return "", fmt.Errorf("retrieve run: %w", err)
	}
	return RunStatus(run.Status), nil
}

func (c *AssistantClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

// LatestReply returns the newest assistant text produced by the run.
func (c *AssistantClient) LatestReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 1
	order := "desc"
	msgs, err := c.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, m := range msgs.Messages {
		if m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, part := range m.Content {
			if part.Text != nil && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", errors.New("run produced no assistant text")
}
