package ai

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

var geminiSafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiClient calls the generateContent REST endpoint.
type GeminiClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *retryablehttp.Client
}

func NewGeminiClient(baseURL, apiKey, model string, client *retryablehttp.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if client == nil {
		client = newHTTPClient(2)
	}
	return &GeminiClient{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, Model: model, client: client}
}

func (c *GeminiClient) Name() string  { return "gemini" }
func (c *GeminiClient) Enabled() bool { return c.APIKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafety struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	SafetySettings    []geminiSafety    `json:"safetySettings"`
	GenerationConfig  map[string]string `json:"generationConfig,omitempty"`
}

// Complete implements Backend. Every safety category is sent with BLOCK_NONE.
func (c *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if !c.Enabled() {
		return "", ErrBackendDisabled
	}
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: p.User}}}},
	}
	if p.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.System}}}
	}
	for _, cat := range geminiSafetyCategories {
		req.SafetySettings = append(req.SafetySettings, geminiSafety{Category: cat, Threshold: "BLOCK_NONE"})
	}
	if p.JSON {
		req.GenerationConfig = map[string]string{"responseMimeType": "application/json"}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, url.PathEscape(c.Model), url.QueryEscape(c.APIKey))
	raw, err := postJSON(ctx, c.client, endpoint, nil, req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return "", ErrInvalidResponse
	}

	var sb strings.Builder
	gjson.GetBytes(raw, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		sb.WriteString(part.Get("text").String())
		return true
	})
	if sb.Len() == 0 {
		if reason := gjson.GetBytes(raw, "promptFeedback.blockReason").String(); reason != "" {
			return "", fmt.Errorf("gemini: prompt blocked: %s", reason)
		}
	}
	return sb.String(), nil
}
