package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type OllamaClient struct {
	BaseURL    string
	EmbedModel string
	GenModel   string
	client     *retryablehttp.Client
}

func NewOllamaClient(baseURL, embedModel, genModel string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if genModel == "" {
		genModel = "qwen2.5:14b" // handles Korean noticeably better than llama3.2
	}
	return &OllamaClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		EmbedModel: embedModel,
		GenModel:   genModel,
		client:     newHTTPClient(1),
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// Enabled reports true once a host is configured; a local daemon needs no key.
func (c *OllamaClient) Enabled() bool { return c.BaseURL != "" }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *OllamaClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	raw, err := postJSON(ctx, c.client, c.BaseURL+"/api/embeddings", nil, embeddingRequest{
		Model:  c.EmbedModel,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}

	var parsedResp embeddingResponse
	if err := json.Unmarshal(raw, &parsedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsedResp.Embedding) == 0 {
		return nil, ErrEmptyResponse
	}
	return parsedResp.Embedding, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"` // For JSON mode
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *OllamaClient) GenerateCompletion(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	reqBody := generateRequest{
		Model:  c.GenModel,
		Prompt: prompt,
		System: system,
		Stream: false,
	}
	if jsonMode {
		reqBody.Format = "json"
	}

	raw, err := postJSON(ctx, c.client, c.BaseURL+"/api/generate", nil, reqBody)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}

	var parsedResp generateResponse
	if err := json.Unmarshal(raw, &parsedResp); err != nil {
		return "", ErrInvalidResponse
	}
	return parsedResp.Response, nil
}

// Complete implements Backend.
func (c *OllamaClient) Complete(ctx context.Context, p Prompt) (string, error) {
	return c.GenerateCompletion(ctx, p.System, p.User, p.JSON)
}
