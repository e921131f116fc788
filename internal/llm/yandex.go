package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Morwran/yagpt"
)

// IAM tokens live for 12 hours; refresh well before that.
const yandexTokenTTL = time.Hour

type YandexClient struct {
	ya      yagpt.YaGPTFace
	refresh func() (string, error)
	now     func() time.Time

	mu     sync.Mutex
	token  string
	issued time.Time
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	c := &YandexClient{
		ya: ya,
		refresh: func() (string, error) {
			resp, err := iam.Create()
			if err != nil {
				return "", err
			}
			return resp.IamToken, nil
		},
		now: time.Now,
	}
	if _, err := c.iamToken(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *YandexClient) iamToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Sub(c.issued) < yandexTokenTTL {
		return c.token, nil
	}
	token, err := c.refresh()
	if err != nil {
		return "", fmt.Errorf("failed to create iam token: %w", err)
	}
	c.token, c.issued = token, c.now()
	return token, nil
}

// Generate sends all turns; YandexGPT accepts system, user and assistant roles.
func (c *YandexClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	token, err := c.iamToken()
	if err != nil {
		return Response{}, err
	}

	yaMsgs := make([]yagpt.Message, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		yaMsgs = append(yaMsgs, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.ya.CompletionWithCtx(ctx, token, yaMsgs)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, fmt.Errorf("yagpt returned empty response")
	}
	out := Response{Content: resp.Alternatives[0].Message.Content, Model: yagpt.YaModelLite}
	out.PromptTokens = int(resp.Usage.InputTextTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	return out, nil
}
