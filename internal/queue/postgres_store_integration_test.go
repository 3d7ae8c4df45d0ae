//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"reelforge/internal/models"
	"reelforge/internal/queue"
	"reelforge/internal/testutil"
)

type PostgresQueueSuite struct {
	suite.Suite
	ctx   context.Context
	store *queue.PostgresStore
}

func TestPostgresQueueSuite(t *testing.T) {
	suite.Run(t, new(PostgresQueueSuite))
}

func (s *PostgresQueueSuite) SetupSuite() {
	s.ctx = context.Background()
	s.store = queue.NewPostgresStore(testutil.Postgres(s.T()), zap.NewNop())
}

func (s *PostgresQueueSuite) newService(clock *fakeClock) *queue.Service {
	return queue.NewService(s.store, zap.NewNop(), queue.Options{
		Concurrency:       2,
		VisibilityTimeout: time.Minute,
		Clock:             clock.Now,
	})
}

func (s *PostgresQueueSuite) TestRetryThenSucceed() {
	clock := newFakeClock()
	svc := s.newService(clock)

	calls := 0
	svc.RegisterWorker(funcWorker{topic: models.TopicScript, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, errUpstream
		}
		return json.RawMessage(`{"ok":true}`), nil
	}})

	id, err := svc.Enqueue(s.ctx, models.TopicScript, map[string]int{"n": 1}, queue.Policy{})
	s.Require().NoError(err)

	_, err = svc.Drain(s.ctx)
	s.Require().NoError(err)
	job, err := svc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.JobQueued, job.State)
	s.Require().NotNil(job.LastError)

	clock.Advance(5 * time.Second)
	_, err = svc.Drain(s.ctx)
	s.Require().NoError(err)

	job, err = svc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.JobSucceeded, job.State)
	s.Equal(2, job.Attempts)
}

func (s *PostgresQueueSuite) TestStaleLeaseIsRejected() {
	clock := newFakeClock()
	svc := s.newService(clock)

	id, err := svc.Enqueue(s.ctx, models.TopicPublish, map[string]int{}, queue.Policy{})
	s.Require().NoError(err)

	claimed, err := s.store.Claim(s.ctx, models.TopicPublish, clock.Now(), 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(id, claimed[0].ID)

	clock.Advance(2 * time.Minute)
	reaped, err := svc.ReapStuck(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, reaped)

	err = s.store.MarkSucceeded(s.ctx, claimed[0], clock.Now())
	s.ErrorIs(err, queue.ErrLeaseLost)

	job, err := svc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.JobQueued, job.State)
}

func (s *PostgresQueueSuite) TestReleaseGivesBackTheAttempt() {
	clock := newFakeClock()
	svc := s.newService(clock)
	id, err := svc.Enqueue(s.ctx, models.TopicVideo, map[string]int{}, queue.Policy{MaxAttempts: 1})
	s.Require().NoError(err)

	claimed, err := s.store.Claim(s.ctx, models.TopicVideo, clock.Now(), 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(1, claimed[0].Attempts)

	s.Require().NoError(s.store.Release(s.ctx, claimed[0], clock.Now()))
	s.ErrorIs(s.store.Release(s.ctx, claimed[0], clock.Now()), queue.ErrLeaseLost)

	job, err := svc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.JobQueued, job.State)
	s.Zero(job.Attempts)
	s.Nil(job.LockedAt)
}

func (s *PostgresQueueSuite) TestClaimSkipsFutureJobs() {
	clock := newFakeClock()
	svc := s.newService(clock)
	_, err := svc.Enqueue(s.ctx, models.TopicThumbnail, map[string]int{}, queue.Policy{})
	s.Require().NoError(err)

	claimed, err := s.store.Claim(s.ctx, models.TopicThumbnail, clock.Now().Add(-time.Second), 10)
	s.Require().NoError(err)
	s.Empty(claimed)

	counts, err := s.store.CountByState(s.ctx, models.TopicThumbnail)
	s.Require().NoError(err)
	s.Equal(1, counts[models.JobQueued])
}

func TestRedisNotifier(t *testing.T) {
	client := testutil.Redis(t)
	notifier := queue.NewRedisNotifier(client, "reelforge:test:wakeups", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topics, err := notifier.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := notifier.Notify(ctx, models.TopicVideo); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-topics:
		if got != models.TopicVideo {
			t.Fatalf("got topic %q", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no wakeup received")
	}
}
