package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"reelforge/internal/models"
)

// UpstreamError wraps a provider failure with ErrTransientUpstream or ErrTerminalUpstream based on
// the HTTP status the provider answered with. A zero status means no response was received.
func UpstreamError(status int, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTransientUpstream) || errors.Is(err, models.ErrTerminalUpstream) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", classifyStatus(status, err), op, err)
}

func classifyStatus(status int, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ErrTransientUpstream
	case status == 0:
		return models.ErrTransientUpstream
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return models.ErrTransientUpstream
	case status >= 400:
		return models.ErrTerminalUpstream
	default:
		return models.ErrTransientUpstream
	}
}

// ErrEmptyResponse means the provider answered successfully but without usable content.
var ErrEmptyResponse = fmt.Errorf("%w: empty provider response", models.ErrTransientUpstream)
