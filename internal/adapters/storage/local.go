package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

// LocalStore keeps objects under a directory. It serves development setups and tests.
type LocalStore struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

var _ adapters.ObjectStore = (*LocalStore)(nil)

func NewLocal(root, publicBaseURL string, logger *zap.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: local storage path is empty", models.ErrInvalidInput)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", root, err)
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:  logger.Named("LocalStore"),
	}, nil
}

// Put writes through a temp file and rename, so readers never see a partial object.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error) {
	start := time.Now()
	defer func() { adapters.Observe("local", "put", start, err) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err = cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}

	s.logger.Debug("Object stored", zap.String("key", key), zap.String("content_type", contentType), zap.Int("bytes", len(data)))
	if s.baseURL == "" {
		return "file://" + dst, nil
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { adapters.Observe("local", "get", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err = cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
