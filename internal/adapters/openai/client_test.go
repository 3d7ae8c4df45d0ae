package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openaigo "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelforge/internal/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *openaigo.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL+"/v1")
}

func TestTextGenerator_Generate(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openaigo.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openaigo.ChatMessageRoleSystem, req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openaigo.ChatCompletionResponse{
			Choices: []openaigo.ChatCompletionChoice{
				{Message: openaigo.ChatCompletionMessage{Role: "assistant", Content: "Space is big."}},
			},
		})
	})

	gen := NewTextGenerator(client, "gpt-4o-mini", zap.NewNop())
	text, err := gen.Generate(context.Background(), "You write scripts.", "Write about space.")
	require.NoError(t, err)
	assert.Equal(t, "Space is big.", text)
}

func TestTextGenerator_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rejected", http.StatusBadRequest, models.ErrTerminalUpstream},
		{"unavailable", http.StatusServiceUnavailable, models.ErrTransientUpstream},
		{"rate limited", http.StatusTooManyRequests, models.ErrTransientUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			})
			gen := NewTextGenerator(client, "gpt-4o-mini", zap.NewNop())
			_, err := gen.Generate(context.Background(), "sys", "prompt")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTextGenerator_EmptyChoices(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	gen := NewTextGenerator(client, "gpt-4o-mini", zap.NewNop())
	_, err := gen.Generate(context.Background(), "sys", "prompt")
	assert.ErrorIs(t, err, models.ErrTransientUpstream)
}

func TestImageGenerator_DecodesBase64(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		var req openaigo.ImageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openaigo.CreateImageResponseFormatB64JSON, req.ResponseFormat)
		assert.Equal(t, "1280x720", req.Size)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	})

	gen := NewImageGenerator(client, "dall-e-3", zap.NewNop())
	img, err := gen.Generate(context.Background(), "a rocket", "1280x720")
	require.NoError(t, err)
	assert.Equal(t, png, img)
}

func TestSpeechSynthesizer_Synthesize(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var req openaigo.CreateSpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openaigo.VoiceNova, req.Voice)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	})

	s := NewSpeechSynthesizer(client, "tts-1", zap.NewNop())
	audio, err := s.Synthesize(context.Background(), "hello there", models.DefaultVoice)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
}

func TestSpeechVoice(t *testing.T) {
	assert.Equal(t, openaigo.VoiceNova, speechVoice("en-US-Neural2-F"))
	assert.Equal(t, openaigo.VoiceOnyx, speechVoice("en-US-Neural2-D"))
	assert.Equal(t, openaigo.VoiceShimmer, speechVoice("shimmer"))
	assert.Equal(t, openaigo.VoiceAlloy, speechVoice("unknown"))
}
