// Package ollama implements adapters.TextGenerator against a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"reelforge/internal/adapters"
)

const adapterName = "ollama"

type TextGenerator struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

var _ adapters.TextGenerator = (*TextGenerator)(nil)

// NewTextGenerator connects to baseURL. A trailing /v1 (OpenAI compatible path) is stripped since
// the native API lives at the root.
func NewTextGenerator(baseURL, model string, httpClient *http.Client, logger *zap.Logger) (*TextGenerator, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TextGenerator{
		client: api.NewClient(parsed, httpClient),
		model:  model,
		logger: logger.Named("OllamaText"),
	}, nil
}

func (g *TextGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (text string, err error) {
	start := time.Now()
	defer func() { adapters.Observe(adapterName, "chat", start, err) }()

	stream := false
	req := &api.ChatRequest{
		Model: g.model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream: &stream,
	}

	var resp api.ChatResponse
	err = g.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		return "", adapters.UpstreamError(statusOf(err), "chat", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("%w: ollama returned no content", adapters.ErrEmptyResponse)
	}

	g.logger.Debug("Chat completion received",
		zap.String("model", g.model),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Message.Content, nil
}

func statusOf(err error) int {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
