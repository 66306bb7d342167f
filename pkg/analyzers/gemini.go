package analyzers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/matzehuels/evidencepack/pkg/cache"
)

// Prompt is one documentation request.
type Prompt struct {
	Kind   string `json:"kind"`
	System string `json:"system"`
	User   string `json:"user"`
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	// Model names the model; it is part of the cache key.
	Model() string
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	cli   *genai.Client
	model string
}

// NewGeminiGenerator creates a generator for model authenticated by apiKey.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{cli: cli, model: model}, nil
}

func (g *GeminiGenerator) Model() string { return g.model }

// Generate sends p and returns the first candidate's text. Rate limits and
// server errors are retried with backoff.
func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: p.System}}}
	}

	var text string
	err := cache.RetryWithBackoff(ctx, func() error {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: p.User}}}},
			cfg,
		)
		if err != nil {
			if transient(err) {
				return cache.Retryable(err)
			}
			return err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return errors.New("empty response")
		}
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
		text = b.String()
		return nil
	})
	return text, err
}

func transient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}
