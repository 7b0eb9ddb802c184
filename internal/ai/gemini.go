package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey      string   `json:"api_key"`
	Temperature *float32 `json:"temperature"`
	// EmbedDimension truncates embeddings when positive.
	EmbedDimension int `json:"embed_dimension"`
}

type geminiProvider struct {
	apiKey      string
	temperature *float32
	embedDim    int32

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

// connect creates the client on first use; the SDK client is safe for
// concurrent calls.
func (p *geminiProvider) connect(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	p.once.Do(func() {
		p.client, p.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.clientErr
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return "", err
	}
	cfg := &genai.GenerateContentConfig{}
	if p.temperature != nil {
		cfg.Temperature = genai.Ptr(*p.temperature)
	}
	resp, err := client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if p.embedDim > 0 {
		dim := p.embedDim
		cfg.OutputDimensionality = &dim
	}
	resp, err := client.Models.EmbedContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return resp.Embeddings[0].Values, nil
}

func init() {
	Register("gemini", func(args interface{}) (IProvider, error) {
		cfg := &geminiConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if cfg.EmbedDimension < 0 {
			return nil, fmt.Errorf("gemini embed_dimension must not be negative")
		}
		return &geminiProvider{
			apiKey:      strings.TrimSpace(cfg.APIKey),
			temperature: cfg.Temperature,
			embedDim:    int32(cfg.EmbedDimension),
		}, nil
	})
}
