package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropic(apiKey, model string, extra ...option.RequestOption) *AnthropicClient {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: 1024,
	}
}

// Generate maps system messages to the System blocks; the rest become alternating turns.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, fmt.Errorf("empty response from anthropic")
	}
	return Response{
		Content:          text.String(),
		Model:            string(resp.Model),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
