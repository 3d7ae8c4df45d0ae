// Package openai implements the text, speech and image adapters on top of the OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"reelforge/internal/adapters"
)

const adapterName = "openai"

// NewClient builds the shared API client. An empty baseURL keeps the library default.
func NewClient(apiKey, baseURL string) *openaigo.Client {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return openaigo.NewClientWithConfig(cfg)
}

// statusOf extracts the HTTP status from go-openai errors. Zero means no response.
func statusOf(err error) int {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// TextGenerator implements adapters.TextGenerator with chat completions.
type TextGenerator struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

var _ adapters.TextGenerator = (*TextGenerator)(nil)

func NewTextGenerator(client *openaigo.Client, model string, logger *zap.Logger) *TextGenerator {
	return &TextGenerator{client: client, model: model, logger: logger.Named("OpenAIText")}
}

func (g *TextGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (text string, err error) {
	start := time.Now()
	defer func() { adapters.Observe(adapterName, "chat", start, err) }()

	promptTokens := adapters.ObserveTokens(g.model, "prompt", systemPrompt+prompt)
	resp, err := g.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: g.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", adapters.UpstreamError(statusOf(err), "chat completion", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: chat completion returned no content", adapters.ErrEmptyResponse)
	}

	text = resp.Choices[0].Message.Content
	completionTokens := adapters.ObserveTokens(g.model, "completion", text)
	g.logger.Debug("Chat completion received",
		zap.String("model", g.model),
		zap.Int("prompt_tokens_estimate", promptTokens),
		zap.Int("completion_tokens_estimate", completionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

// SpeechSynthesizer implements adapters.SpeechSynthesizer with the speech endpoint.
type SpeechSynthesizer struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

var _ adapters.SpeechSynthesizer = (*SpeechSynthesizer)(nil)

func NewSpeechSynthesizer(client *openaigo.Client, model string, logger *zap.Logger) *SpeechSynthesizer {
	return &SpeechSynthesizer{client: client, model: model, logger: logger.Named("OpenAISpeech")}
}

func (s *SpeechSynthesizer) Synthesize(ctx context.Context, text, voice string) (audio []byte, err error) {
	start := time.Now()
	defer func() { adapters.Observe(adapterName, "speech", start, err) }()

	resp, err := s.client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(s.model),
		Input:          text,
		Voice:          speechVoice(voice),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, adapters.UpstreamError(statusOf(err), "create speech", err)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return nil, adapters.UpstreamError(0, "read speech", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: speech response was empty", adapters.ErrEmptyResponse)
	}
	s.logger.Debug("Speech synthesized", zap.String("voice", voice), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// speechVoice maps platform voice names such as en-US-Neural2-F onto the provider's voices.
func speechVoice(voice string) openaigo.SpeechVoice {
	switch v := openaigo.SpeechVoice(strings.ToLower(voice)); v {
	case openaigo.VoiceAlloy, openaigo.VoiceEcho, openaigo.VoiceFable,
		openaigo.VoiceOnyx, openaigo.VoiceNova, openaigo.VoiceShimmer:
		return v
	}
	switch {
	case strings.HasSuffix(voice, "-F"), strings.HasSuffix(voice, "-C"), strings.HasSuffix(voice, "-E"):
		return openaigo.VoiceNova
	case strings.HasSuffix(voice, "-D"), strings.HasSuffix(voice, "-J"), strings.HasSuffix(voice, "-M"):
		return openaigo.VoiceOnyx
	default:
		return openaigo.VoiceAlloy
	}
}

// ImageGenerator implements adapters.ImageGenerator with base64 image responses.
type ImageGenerator struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

var _ adapters.ImageGenerator = (*ImageGenerator)(nil)

func NewImageGenerator(client *openaigo.Client, model string, logger *zap.Logger) *ImageGenerator {
	return &ImageGenerator{client: client, model: model, logger: logger.Named("OpenAIImage")}
}

func (g *ImageGenerator) Generate(ctx context.Context, prompt, size string) (image []byte, err error) {
	start := time.Now()
	defer func() { adapters.Observe(adapterName, "image", start, err) }()

	resp, err := g.client.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           size,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, adapters.UpstreamError(statusOf(err), "create image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: image response had no data", adapters.ErrEmptyResponse)
	}
	image, err = base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", adapters.ErrEmptyResponse, err)
	}
	return image, nil
}
