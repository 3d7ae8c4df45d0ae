package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"reelforge/internal/models"
)

func TestWrapNotFound(t *testing.T) {
	assert.ErrorIs(t, WrapNotFound(fmt.Errorf("select: %w", pgx.ErrNoRows)), models.ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, WrapNotFound(other))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsConflict(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsConflict(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsConflict(errors.New("plain")))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func TestSanitizeLimit(t *testing.T) {
	cases := []struct{ in, want int }{{0, 50}, {-1, 50}, {10, 10}, {200, 200}, {201, 50}}
	for _, c := range cases {
		got := c.in
		SanitizeLimit(&got, 50, 200)
		assert.Equal(t, c.want, got, "limit %d", c.in)
	}
}
