//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"reelforge/internal/models"
	"reelforge/internal/repository"
	"reelforge/internal/testutil"
)

type PostgresRepositorySuite struct {
	suite.Suite
	ctx      context.Context
	pool     *pgxpool.Pool
	scripts  repository.ScriptRepository
	videos   repository.VideoRepository
	accounts repository.PlatformAccountRepository
	subs     repository.SubscriptionRepository
}

func TestPostgresRepositorySuite(t *testing.T) {
	suite.Run(t, new(PostgresRepositorySuite))
}

func (s *PostgresRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.pool = testutil.Postgres(s.T())
	logger := zap.NewNop()
	s.scripts = repository.NewPgScriptRepository(s.pool, logger)
	s.videos = repository.NewPgVideoRepository(s.pool, logger)
	s.accounts = repository.NewPgPlatformAccountRepository(s.pool, logger)
	s.subs = repository.NewPgSubscriptionRepository(s.pool, logger)
}

func (s *PostgresRepositorySuite) newUser() uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.ctx, `INSERT INTO users (id, credit_balance) VALUES ($1, 0)`, id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresRepositorySuite) newScript(user uuid.UUID, status models.ScriptStatus) *models.Script {
	script := &models.Script{
		ID:        uuid.New(),
		UserID:    user,
		Niche:     "space",
		Keywords:  []string{"mars", "rockets"},
		Length:    90,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.scripts.Create(s.ctx, script))
	return script
}

func (s *PostgresRepositorySuite) TestScriptLifecycle() {
	user := s.newUser()
	script := s.newScript(user, models.ScriptPending)

	ok, err := s.scripts.MarkGenerated(s.ctx, script.ID, "Mars", "Red planet.")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.scripts.MarkFailed(s.ctx, script.ID)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.scripts.Get(s.ctx, script.ID)
	s.Require().NoError(err)
	s.Equal(models.ScriptGenerated, got.Status)
	s.Equal([]string{"mars", "rockets"}, got.Keywords)

	_, err = s.scripts.MarkFailed(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrNotFound)

	list, err := s.scripts.ListByUser(s.ctx, user, 10, 0)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *PostgresRepositorySuite) TestVideoUpdate() {
	user := s.newUser()
	script := s.newScript(user, models.ScriptGenerated)
	video := &models.Video{
		ID:              uuid.New(),
		UserID:          user,
		ScriptID:        script.ID,
		Status:          models.VideoRequested,
		Voice:           models.DefaultVoice,
		VideoStyle:      models.VideoStyleModern,
		ThumbnailStyle:  models.ThumbnailProfessional,
		ReservedCredits: 3,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	s.Require().NoError(s.videos.Create(s.ctx, video))

	ref := "audio/u/v/j.mp3"
	updated, err := s.videos.Update(s.ctx, video.ID, func(v *models.Video) error {
		v.Status = models.VideoProcessing
		v.AudioRef = &ref
		return nil
	})
	s.Require().NoError(err)
	s.Equal(models.VideoProcessing, updated.Status)

	unchanged, err := s.videos.Update(s.ctx, video.ID, func(v *models.Video) error {
		v.Status = models.VideoFailed
		return repository.ErrNoChange
	})
	s.Require().NoError(err)
	s.Equal(models.VideoProcessing, unchanged.Status)

	got, err := s.videos.Get(s.ctx, video.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.AudioRef)
	s.Equal(ref, *got.AudioRef)
	s.True(got.HasAnyOutput())

	s.Require().NoError(s.videos.Delete(s.ctx, video.ID))
	s.ErrorIs(s.videos.Delete(s.ctx, video.ID), models.ErrNotFound)
	_, err = s.videos.Update(s.ctx, video.ID, func(*models.Video) error { return nil })
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *PostgresRepositorySuite) newVideo(user, scriptID uuid.UUID) *models.Video {
	now := time.Now().UTC()
	video := &models.Video{
		ID:             uuid.New(),
		UserID:         user,
		ScriptID:       scriptID,
		Status:         models.VideoProcessing,
		Voice:          models.DefaultVoice,
		VideoStyle:     models.VideoStyleModern,
		ThumbnailStyle: models.ThumbnailProfessional,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(s.videos.Create(s.ctx, video))
	return video
}

func (s *PostgresRepositorySuite) TestVideoJobTrackingColumns() {
	user := s.newUser()
	video := s.newVideo(user, s.newScript(user, models.ScriptGenerated).ID)

	renderJob := uuid.New()
	requested := time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.videos.Update(s.ctx, video.ID, func(v *models.Video) error {
		v.RenderJobID = &renderJob
		v.PublishRequestedAt = &requested
		return nil
	})
	s.Require().NoError(err)

	got, err := s.videos.Get(s.ctx, video.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.RenderJobID)
	s.Equal(renderJob, *got.RenderJobID)
	s.Require().NotNil(got.PublishRequestedAt)
	s.True(requested.Equal(*got.PublishRequestedAt))
}

func (s *PostgresRepositorySuite) TestDeleteScriptCascadesToVideos() {
	user := s.newUser()
	script := s.newScript(user, models.ScriptGenerated)
	first := s.newVideo(user, script.ID)
	second := s.newVideo(user, script.ID)
	other := s.newVideo(user, s.newScript(user, models.ScriptGenerated).ID)

	s.Require().NoError(s.scripts.Delete(s.ctx, script.ID))
	s.ErrorIs(s.scripts.Delete(s.ctx, script.ID), models.ErrNotFound)

	_, err := s.scripts.Get(s.ctx, script.ID)
	s.ErrorIs(err, models.ErrNotFound)
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		_, err = s.videos.Get(s.ctx, id)
		s.ErrorIs(err, models.ErrNotFound)
	}
	_, err = s.videos.Get(s.ctx, other.ID)
	s.NoError(err)

	n, err := s.videos.DeleteByScript(s.ctx, other.ScriptID)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *PostgresRepositorySuite) TestAccountsAndSubscriptions() {
	user := s.newUser()

	_, err := s.accounts.Get(s.ctx, user)
	s.ErrorIs(err, models.ErrNotFound)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	s.Require().NoError(s.accounts.Upsert(s.ctx, &models.PlatformAccount{UserID: user, AccessToken: "a1", RefreshToken: "r1", Expiry: expiry}))
	s.Require().NoError(s.accounts.Upsert(s.ctx, &models.PlatformAccount{UserID: user, AccessToken: "a2", RefreshToken: "r2", Expiry: expiry}))
	account, err := s.accounts.Get(s.ctx, user)
	s.Require().NoError(err)
	s.Equal("a2", account.AccessToken)
	s.True(expiry.Equal(account.Expiry))

	s.Require().NoError(s.subs.Upsert(s.ctx, &models.Subscription{UserID: user, ExternalRef: "sub_1", Status: models.SubscriptionActive}))
	s.Require().NoError(s.subs.Upsert(s.ctx, &models.Subscription{UserID: user, ExternalRef: "sub_1", Status: models.SubscriptionCanceled}))
	sub, err := s.subs.Get(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionCanceled, sub.Status)
}
