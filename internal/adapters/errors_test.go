package adapters

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"reelforge/internal/models"
)

func TestUpstreamError(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name   string
		status int
		err    error
		want   error
	}{
		{"no response", 0, base, models.ErrTransientUpstream},
		{"rate limited", http.StatusTooManyRequests, base, models.ErrTransientUpstream},
		{"server error", http.StatusBadGateway, base, models.ErrTransientUpstream},
		{"content rejected", http.StatusBadRequest, base, models.ErrTerminalUpstream},
		{"forbidden", http.StatusForbidden, base, models.ErrTerminalUpstream},
		{"deadline", http.StatusBadRequest, context.DeadlineExceeded, models.ErrTransientUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UpstreamError(tt.status, "op", tt.err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.NoError(t, UpstreamError(http.StatusInternalServerError, "op", nil))

	already := UpstreamError(http.StatusBadRequest, "inner", base)
	assert.Same(t, already, UpstreamError(http.StatusInternalServerError, "outer", already))
}

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens("gpt-4o-mini", ""))
	assert.Greater(t, CountTokens("gpt-4o-mini", "a short narration about space"), 0)
	assert.Greater(t, CountTokens("some-local-model", "hello world"), 0)
}
