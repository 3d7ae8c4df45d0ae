package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

type GCSStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

var _ adapters.ObjectStore = (*GCSStore)(nil)

// NewGCS creates a bucket client. Without a credentials file the default application
// credentials are used.
func NewGCS(ctx context.Context, bucket, credentialsFile string, logger *zap.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, logger: logger.Named("GCSStore")}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error) {
	start := time.Now()
	defer func() { adapters.Observe("gcs", "put", start, err) }()

	key, err = cleanKey(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", adapters.UpstreamError(statusOf(err), "gcs write", err)
	}
	if err := w.Close(); err != nil {
		return "", adapters.UpstreamError(statusOf(err), "gcs close", err)
	}
	s.logger.Debug("Object stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { adapters.Observe("gcs", "get", start, err) }()

	key, err = cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: object %s", models.ErrNotFound, key)
		}
		return nil, adapters.UpstreamError(statusOf(err), "gcs read", err)
	}
	defer func() { _ = r.Close() }()

	data, err = io.ReadAll(r)
	if err != nil {
		return nil, adapters.UpstreamError(0, "gcs read body", err)
	}
	return data, nil
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
