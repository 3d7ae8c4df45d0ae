package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelforge/internal/config"
	"reelforge/internal/models"
)

func TestLocalStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir(), "http://cdn.test/assets/", zap.NewNop())
	require.NoError(t, err)

	url, err := store.Put(ctx, "audio/u1/v1/j1.mp3", []byte("first"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/assets/audio/u1/v1/j1.mp3", url)

	_, err = store.Put(ctx, "audio/u1/v1/j1.mp3", []byte("second"), "audio/mpeg")
	require.NoError(t, err)

	data, err := store.Get(ctx, "audio/u1/v1/j1.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)

	_, err = store.Get(ctx, "missing/key.png")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.Put(ctx, "../escape.txt", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	url, err := store.Put(ctx, "/thumbnails/a.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Backend: "local", LocalPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), config.StorageConfig{Backend: "s3"}, zap.NewNop())
	assert.Error(t, err)
}
