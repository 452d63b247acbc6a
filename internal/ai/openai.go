package ai

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls a chat completions endpoint.
type OpenAIClient struct {
	URL    string
	APIKey string
	Model  string
	client *retryablehttp.Client
}

func NewOpenAIClient(url, apiKey, model string, client *retryablehttp.Client) *OpenAIClient {
	if url == "" {
		url = defaultOpenAIURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if client == nil {
		client = newHTTPClient(2)
	}
	return &OpenAIClient{URL: url, APIKey: apiKey, Model: model, client: client}
}

func (c *OpenAIClient) Name() string  { return "openai" }
func (c *OpenAIClient) Enabled() bool { return c.APIKey != "" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Complete implements Backend. The first choice with non-empty content wins.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if !c.Enabled() {
		return "", ErrBackendDisabled
	}
	req := chatRequest{Model: c.Model}
	if p.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.User})
	if p.JSON {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	raw, err := postJSON(ctx, c.client, c.URL, map[string]string{"Authorization": "Bearer " + c.APIKey}, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return "", ErrInvalidResponse
	}

	var answer string
	gjson.GetBytes(raw, "choices").ForEach(func(_, choice gjson.Result) bool {
		answer = choice.Get("message.content").String()
		return answer == ""
	})
	return answer, nil
}
