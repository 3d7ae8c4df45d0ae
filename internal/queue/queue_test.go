package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelforge/internal/models"
	"reelforge/internal/queue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type funcWorker struct {
	topic models.Topic
	fn    func(ctx context.Context, job *models.Job) (json.RawMessage, error)
}

func (w funcWorker) Topic() models.Topic { return w.topic }
func (w funcWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	return w.fn(ctx, job)
}

func newQueue(t *testing.T, clock *fakeClock) (*queue.Service, *queue.MemoryStore) {
	t.Helper()
	store := queue.NewMemoryStore()
	svc := queue.NewService(store, zap.NewNop(), queue.Options{
		Concurrency:       4,
		VisibilityTimeout: time.Minute,
		Clock:             clock.Now,
	})
	return svc, store
}

var errUpstream = fmt.Errorf("%w: 503 from provider", models.ErrTransientUpstream)

func TestDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, queue.Delay(2*time.Second, 1))
	assert.Equal(t, 4*time.Second, queue.Delay(2*time.Second, 2))
	assert.Equal(t, 8*time.Second, queue.Delay(2*time.Second, 3))
	assert.Equal(t, 2*time.Second, queue.Delay(2*time.Second, 0))
	assert.Equal(t, time.Hour, queue.Delay(2*time.Second, 40))
}

func TestJobExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	var calls atomic.Int32
	svc.RegisterWorker(funcWorker{topic: models.TopicAudio, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		calls.Add(1)
		return nil, errUpstream
	}})
	var failures []error
	svc.OnFailure(models.TopicAudio, func(_ context.Context, _ *models.Job, cause error) error {
		failures = append(failures, cause)
		return nil
	})
	svc.OnSuccess(models.TopicAudio, func(context.Context, *models.Job, json.RawMessage) error {
		t.Fatal("success handler must not run")
		return nil
	})

	id, err := svc.Enqueue(ctx, models.TopicAudio, map[string]string{"videoId": "v1"}, queue.Policy{})
	require.NoError(t, err)

	n, err := svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)
	assert.Equal(t, clock.Now().Add(2*time.Second), job.NextRunAt)

	// Not ready until the backoff elapses.
	n, err = svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2 * time.Second)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)
	clock.Advance(4 * time.Second)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.State)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], models.ErrTransientUpstream)

	clock.Advance(time.Hour)
	n, err = svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "terminal jobs are never redelivered")
}

func TestJobSucceedsAfterTwoFailures(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	var calls atomic.Int32
	svc.RegisterWorker(funcWorker{topic: models.TopicVideo, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		if calls.Add(1) <= 2 {
			return nil, errUpstream
		}
		return json.RawMessage(`{"videoRef":"videos/a.mp4"}`), nil
	}})
	var output json.RawMessage
	svc.OnSuccess(models.TopicVideo, func(_ context.Context, _ *models.Job, out json.RawMessage) error {
		output = out
		return nil
	})

	id, err := svc.Enqueue(ctx, models.TopicVideo, json.RawMessage(`{}`), queue.Policy{MaxAttempts: 3, BackoffBase: time.Second})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Drain(ctx)
		require.NoError(t, err)
		clock.Advance(10 * time.Second)
	}

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, job.State)
	assert.Equal(t, 3, job.Attempts)
	assert.JSONEq(t, `{"videoRef":"videos/a.mp4"}`, string(output))
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newQueue(t, newFakeClock())

	cases := map[string]error{
		"explicit permanent": queue.Permanent(errors.New("bad payload")),
		"not found":          fmt.Errorf("video gone: %w", models.ErrNotFound),
		"terminal upstream":  fmt.Errorf("content policy: %w", models.ErrTerminalUpstream),
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			topic := models.Topic("t-" + name)
			svc.RegisterWorker(funcWorker{topic: topic, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
				return nil, cause
			}})
			var failed int
			svc.OnFailure(topic, func(context.Context, *models.Job, error) error {
				failed++
				return nil
			})

			id, err := svc.Enqueue(ctx, topic, json.RawMessage(`{}`), queue.Policy{})
			require.NoError(t, err)
			_, err = svc.Drain(ctx)
			require.NoError(t, err)

			job, err := svc.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.JobFailed, job.State)
			assert.Equal(t, 1, job.Attempts)
			assert.Equal(t, 1, failed)
		})
	}
}

func TestSuccessHandlerErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	svc.RegisterWorker(funcWorker{topic: models.TopicThumbnail, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}})
	var handled atomic.Int32
	svc.OnSuccess(models.TopicThumbnail, func(context.Context, *models.Job, json.RawMessage) error {
		if handled.Add(1) == 1 {
			return errors.New("db unavailable")
		}
		return nil
	})

	id, err := svc.Enqueue(ctx, models.TopicThumbnail, json.RawMessage(`{}`), queue.Policy{})
	require.NoError(t, err)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)

	clock.Advance(2 * time.Second)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, job.State)
	assert.Equal(t, int32(2), handled.Load())
}

func TestInterruptedLastAttemptIsReleased(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	svc.RegisterWorker(funcWorker{topic: models.TopicAudio, fn: func(ctx context.Context, _ *models.Job) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			// Shutdown arrives mid-job.
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return json.RawMessage(`{}`), nil
	}})
	var failures atomic.Int32
	svc.OnFailure(models.TopicAudio, func(context.Context, *models.Job, error) error {
		failures.Add(1)
		return nil
	})

	id, err := svc.Enqueue(context.Background(), models.TopicAudio, json.RawMessage(`{}`), queue.Policy{MaxAttempts: 1})
	require.NoError(t, err)

	_, err = svc.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	job, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)
	assert.Equal(t, 0, job.Attempts)
	assert.Nil(t, job.LockedAt)
	assert.False(t, job.NextRunAt.After(clock.Now()), "released job is ready immediately")
	assert.Zero(t, failures.Load())

	// The next process picks it up and the single attempt is still available.
	_, err = svc.Drain(context.Background())
	require.NoError(t, err)

	job, err = svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, failures.Load())
}

func TestFailureHandlerErrorKeepsJobPending(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	var processed atomic.Int32
	svc.RegisterWorker(funcWorker{topic: models.TopicAudio, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		processed.Add(1)
		return nil, queue.Permanent(errors.New("script empty"))
	}})
	var handled atomic.Int32
	svc.OnFailure(models.TopicAudio, func(context.Context, *models.Job, error) error {
		if handled.Add(1) == 1 {
			return errors.New("db unavailable")
		}
		return nil
	})

	id, err := svc.Enqueue(ctx, models.TopicAudio, json.RawMessage(`{}`), queue.Policy{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.State)

	clock.Advance(time.Minute)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.State)
	assert.Equal(t, int32(1), processed.Load(), "worker is not re-run for a pending failure handler")
	assert.Equal(t, int32(2), handled.Load())
}

func TestRetryDelayTakesPrecedenceOverInsertionOrder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, _ := newQueue(t, clock)

	var order []string
	svc.RegisterWorker(funcWorker{topic: models.TopicScript, fn: func(_ context.Context, job *models.Job) (json.RawMessage, error) {
		var p struct{ Name string }
		require.NoError(t, json.Unmarshal(job.Payload, &p))
		order = append(order, fmt.Sprintf("%s#%d", p.Name, job.Attempts))
		if p.Name == "a" && job.Attempts == 1 {
			return nil, errUpstream
		}
		return nil, nil
	}})

	_, err := svc.Enqueue(ctx, models.TopicScript, map[string]string{"Name": "a"}, queue.Policy{})
	require.NoError(t, err)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	_, err = svc.Enqueue(ctx, models.TopicScript, map[string]string{"Name": "b"}, queue.Policy{})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, models.TopicScript, map[string]string{"Name": "c"}, queue.Policy{})
	require.NoError(t, err)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a#1", "b#1", "c#1", "a#2"}, order)
}

func TestReapStuckJobs(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, store := newQueue(t, clock)

	var ran atomic.Int32
	svc.RegisterWorker(funcWorker{topic: models.TopicPublish, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		ran.Add(1)
		return nil, nil
	}})

	id, err := svc.Enqueue(ctx, models.TopicPublish, json.RawMessage(`{}`), queue.Policy{})
	require.NoError(t, err)

	// A worker claims the job and dies.
	claimed, err := store.Claim(ctx, models.TopicPublish, clock.Now(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	n, err := svc.ReapStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "lease still valid")

	clock.Advance(2 * time.Minute)
	n, err = svc.ReapStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The dead worker's late report must not clobber the new state.
	assert.ErrorIs(t, store.MarkSucceeded(ctx, claimed[0], clock.Now()), queue.ErrLeaseLost)

	_, err = svc.Drain(ctx)
	require.NoError(t, err)
	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, job.State)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, int32(1), ran.Load())
}

func TestAbandonedOnLastAttemptGoesTerminal(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	svc, store := newQueue(t, clock)

	svc.RegisterWorker(funcWorker{topic: models.TopicAudio, fn: func(context.Context, *models.Job) (json.RawMessage, error) {
		t.Fatal("worker must not run past its attempt budget")
		return nil, nil
	}})
	var cause error
	svc.OnFailure(models.TopicAudio, func(_ context.Context, _ *models.Job, c error) error {
		cause = c
		return nil
	})

	id, err := svc.Enqueue(ctx, models.TopicAudio, json.RawMessage(`{}`), queue.Policy{MaxAttempts: 1})
	require.NoError(t, err)
	_, err = store.Claim(ctx, models.TopicAudio, clock.Now(), 1)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.ReapStuck(ctx)
	require.NoError(t, err)
	_, err = svc.Drain(ctx)
	require.NoError(t, err)

	job, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.State)
	assert.ErrorIs(t, cause, queue.ErrJobAbandoned)
}

func TestRunDeliversEachJobToOneWorker(t *testing.T) {
	const jobs = 60
	store := queue.NewMemoryStore()

	var (
		mu     sync.Mutex
		counts = make(map[uuid.UUID]int)
		done   = make(chan struct{})
		total  atomic.Int32
	)
	worker := funcWorker{topic: models.TopicThumbnail, fn: func(_ context.Context, job *models.Job) (json.RawMessage, error) {
		mu.Lock()
		counts[job.ID]++
		mu.Unlock()
		time.Sleep(time.Millisecond)
		if total.Add(1) == jobs {
			close(done)
		}
		return nil, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two processes sharing one store.
	var wg sync.WaitGroup
	var producer *queue.Service
	for i := 0; i < 2; i++ {
		svc := queue.NewService(store, zap.NewNop(), queue.Options{Concurrency: 3, PollInterval: 5 * time.Millisecond})
		svc.RegisterWorker(worker)
		producer = svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Run(ctx)
		}()
	}

	for i := 0; i < jobs; i++ {
		_, err := producer.Enqueue(context.Background(), models.TopicThumbnail, map[string]int{"n": i}, queue.Policy{})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("jobs were not processed in time")
	}
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, counts, jobs)
	for id, c := range counts {
		assert.Equal(t, 1, c, "job %s delivered %d times", id, c)
	}
	states, err := store.CountByState(context.Background(), models.TopicThumbnail)
	require.NoError(t, err)
	assert.Equal(t, jobs, states[models.JobSucceeded])
}
