// Package storage implements adapters.ObjectStore on Google Cloud Storage and on the local
// filesystem.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/config"
	"reelforge/internal/models"
)

// New returns the object store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (adapters.ObjectStore, error) {
	switch cfg.Backend {
	case "gcs":
		return NewGCS(ctx, cfg.GCSBucket, cfg.CredentialsFile, logger)
	case "local", "":
		return NewLocal(cfg.LocalPath, cfg.PublicBaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// cleanKey rejects keys that would escape the bucket or base directory.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(key, "/"))
	if k == "." || k == "" || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("%w: invalid object key %q", models.ErrInvalidInput, key)
	}
	return k, nil
}
