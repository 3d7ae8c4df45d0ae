package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reelforge/internal/models"
)

// Worker executes jobs of a single topic.
type Worker interface {
	Topic() models.Topic
	Process(ctx context.Context, job *models.Job) (json.RawMessage, error)
}

// SuccessHandler runs after a worker succeeds and before the job is marked SUCCEEDED.
// Returning an error turns the execution into a failed attempt.
type SuccessHandler func(ctx context.Context, job *models.Job, output json.RawMessage) error

// FailureHandler runs once a job can no longer be retried. Returning an error keeps the job
// pending so the handler is invoked again later.
type FailureHandler func(ctx context.Context, job *models.Job, cause error) error

// RetryClassifier decides whether a failed attempt may be retried.
type RetryClassifier func(err error) bool

// Options tunes dispatching. Zero values fall back to defaults.
type Options struct {
	Concurrency       int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	ReapInterval      time.Duration
	DefaultPolicy     Policy
	Classifier        RetryClassifier
	Notifier          Notifier
	Clock             func() time.Time
}

// Service is the job queue. One instance is created per process and passed to every
// component that enqueues or serves work.
type Service struct {
	store  Store
	logger *zap.Logger
	opts   Options

	mu        sync.RWMutex
	workers   map[models.Topic]Worker
	onSuccess map[models.Topic]SuccessHandler
	onFailure map[models.Topic]FailureHandler
	wake      map[models.Topic]chan struct{}
}

func NewService(store Store, logger *zap.Logger, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 15 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	opts.DefaultPolicy = opts.DefaultPolicy.normalized()
	if opts.Classifier == nil {
		opts.Classifier = IsRetryable
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:     store,
		logger:    logger.Named("JobQueue"),
		opts:      opts,
		workers:   make(map[models.Topic]Worker),
		onSuccess: make(map[models.Topic]SuccessHandler),
		onFailure: make(map[models.Topic]FailureHandler),
		wake:      make(map[models.Topic]chan struct{}),
	}
}

func (s *Service) now() time.Time {
	return s.opts.Clock().UTC().Truncate(time.Microsecond)
}

// RegisterWorker makes this process serve w.Topic().
func (s *Service) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.Topic()] = w
}

// OnSuccess registers the handler invoked with a worker's output.
func (s *Service) OnSuccess(topic models.Topic, h SuccessHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSuccess[topic] = h
}

// OnFailure registers the handler invoked for terminally failed jobs.
func (s *Service) OnFailure(topic models.Topic, h FailureHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure[topic] = h
}

// Enqueue persists a job. A zero policy uses the queue default.
func (s *Service) Enqueue(ctx context.Context, topic models.Topic, payload any, policy Policy) (uuid.UUID, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: cannot encode payload: %v", models.ErrInvalidInput, err)
		}
		raw = b
	}
	if policy == (Policy{}) {
		policy = s.opts.DefaultPolicy
	}
	policy = policy.normalized()

	now := s.now()
	job := &models.Job{
		ID:          uuid.New(),
		Topic:       topic,
		Payload:     raw,
		MaxAttempts: policy.MaxAttempts,
		BackoffBase: policy.BackoffBase,
		State:       models.JobQueued,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return uuid.Nil, err
	}
	jobsEnqueued.WithLabelValues(string(topic)).Inc()
	s.logger.Debug("Job enqueued", zap.Stringer("job_id", job.ID), zap.String("topic", string(topic)))

	s.signal(topic)
	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.Notify(ctx, topic); err != nil {
			s.logger.Warn("Failed to send job wakeup", zap.String("topic", string(topic)), zap.Error(err))
		}
	}
	return job.ID, nil
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.Get(ctx, id)
}

// Run dispatches every registered topic, reaps stuck jobs and listens for wakeups until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	topics := s.topics()
	if len(topics) == 0 {
		return errors.New("queue: no workers registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		topic := topic
		g.Go(func() error {
			s.dispatch(gctx, topic)
			return nil
		})
	}
	g.Go(func() error {
		s.reapLoop(gctx)
		return nil
	})
	if s.opts.Notifier != nil {
		wakeups, err := s.opts.Notifier.Subscribe(gctx)
		if err != nil {
			s.logger.Warn("Job wakeups unavailable, relying on polling", zap.Error(err))
		} else {
			g.Go(func() error {
				for topic := range wakeups {
					s.signal(topic)
				}
				return nil
			})
		}
	}

	s.logger.Info("Job queue started",
		zap.Int("topics", len(topics)),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	err := g.Wait()
	s.logger.Info("Job queue stopped")
	return err
}

// Drain synchronously executes ready jobs on every registered topic until none are ready.
// It returns the number of executions.
func (s *Service) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		round := 0
		for _, topic := range s.topics() {
			jobs, err := s.store.Claim(ctx, topic, s.now(), s.opts.Concurrency)
			if err != nil {
				return total, err
			}
			for _, job := range jobs {
				s.execute(ctx, job)
				round++
			}
		}
		if round == 0 {
			return total, nil
		}
		total += round
	}
}

// ReapStuck returns RUNNING jobs whose lease outlived the visibility timeout to the queue.
func (s *Service) ReapStuck(ctx context.Context) (int, error) {
	now := s.now()
	stuck, err := s.store.Stuck(ctx, now.Add(-s.opts.VisibilityTimeout))
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, job := range stuck {
		if err := s.store.Reschedule(ctx, job, now, "visibility timeout exceeded"); err != nil {
			if !errors.Is(err, ErrLeaseLost) {
				s.logger.Error("Failed to requeue stuck job", zap.Stringer("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		reaped++
		jobsReaped.Inc()
		s.logger.Warn("Requeued stuck job",
			zap.Stringer("job_id", job.ID),
			zap.String("topic", string(job.Topic)),
			zap.Int("attempts", job.Attempts),
		)
		s.signal(job.Topic)
	}
	return reaped, nil
}

func (s *Service) topics() []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]models.Topic, 0, len(s.workers))
	for t := range s.workers {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

func (s *Service) wakeChan(topic models.Topic) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.wake[topic]
	if !ok {
		ch = make(chan struct{}, 1)
		s.wake[topic] = ch
	}
	return ch
}

func (s *Service) signal(topic models.Topic) {
	select {
	case s.wakeChan(topic) <- struct{}{}:
	default:
	}
}

func (s *Service) dispatch(ctx context.Context, topic models.Topic) {
	log := s.logger.With(zap.String("topic", string(topic)))
	slots := make(chan struct{}, s.opts.Concurrency)
	wake := s.wakeChan(topic)
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if free := cap(slots) - len(slots); free > 0 && ctx.Err() == nil {
			jobs, err := s.store.Claim(ctx, topic, s.now(), free)
			if err != nil && ctx.Err() == nil {
				log.Error("Failed to claim jobs", zap.Error(err))
			}
			for _, job := range jobs {
				slots <- struct{}{}
				wg.Add(1)
				go func(job *models.Job) {
					defer wg.Done()
					defer func() {
						<-slots
						s.signal(topic)
					}()
					s.execute(ctx, job)
				}(job)
			}
			if len(jobs) > 0 && len(jobs) == free {
				continue
			}
		}

		select {
		case <-ctx.Done():
			log.Info("Dispatcher stopping, waiting for in-flight jobs")
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (s *Service) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReapStuck(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Failed to reap stuck jobs", zap.Error(err))
			}
		}
	}
}

func (s *Service) handlers(topic models.Topic) (Worker, SuccessHandler, FailureHandler) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workers[topic], s.onSuccess[topic], s.onFailure[topic]
}

// execute runs one claimed job and records its outcome. Store transitions use a context that
// survives shutdown so an interrupted job is always handed back.
func (s *Service) execute(ctx context.Context, job *models.Job) {
	start := time.Now()
	topic := string(job.Topic)
	defer func() { jobDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds()) }()

	log := s.logger.With(
		zap.Stringer("job_id", job.ID),
		zap.String("topic", topic),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
	)
	bg := context.WithoutCancel(ctx)
	worker, onSuccess, onFailure := s.handlers(job.Topic)

	// Redelivered past its budget: the worker vanished or the failure handler failed last time.
	if job.Attempts > job.MaxAttempts {
		cause := ErrJobAbandoned
		if job.LastError != nil {
			cause = fmt.Errorf("%w: %s", ErrJobAbandoned, *job.LastError)
		}
		s.terminate(bg, log, job, cause, onFailure)
		return
	}

	if worker == nil {
		s.terminate(bg, log, job, Permanent(fmt.Errorf("no worker for topic %s", topic)), onFailure)
		return
	}

	log.Info("Processing job")
	output, err := s.safeProcess(ctx, worker, job)
	if err == nil && onSuccess != nil {
		if herr := onSuccess(bg, job, output); herr != nil {
			err = fmt.Errorf("success handler: %w", herr)
		}
	}

	if err == nil {
		if merr := s.store.MarkSucceeded(bg, job, s.now()); merr != nil {
			jobsProcessed.WithLabelValues(topic, "lease_lost").Inc()
			log.Error("Failed to mark job succeeded", zap.Error(merr))
			return
		}
		jobsProcessed.WithLabelValues(topic, "succeeded").Inc()
		log.Info("Job succeeded", zap.Duration("duration", time.Since(start)))
		return
	}

	// Shutdown is not the job's fault: hand it back with its attempt.
	if ctx.Err() != nil {
		if rerr := s.store.Release(bg, job, s.now()); rerr != nil {
			log.Error("Failed to release interrupted job", zap.Error(rerr))
			return
		}
		jobsProcessed.WithLabelValues(topic, "released").Inc()
		log.Warn("Job interrupted, released", zap.Error(err))
		return
	}

	if s.opts.Classifier(err) && job.Attempts < job.MaxAttempts {
		delay := Delay(job.BackoffBase, job.Attempts)
		if rerr := s.store.Reschedule(bg, job, s.now().Add(delay), err.Error()); rerr != nil {
			log.Error("Failed to reschedule job", zap.Error(rerr))
			return
		}
		jobsProcessed.WithLabelValues(topic, "retried").Inc()
		log.Warn("Job failed, retry scheduled", zap.Duration("delay", delay), zap.Error(err))
		return
	}

	s.terminate(bg, log, job, err, onFailure)
}

func (s *Service) terminate(ctx context.Context, log *zap.Logger, job *models.Job, cause error, onFailure FailureHandler) {
	topic := string(job.Topic)
	if onFailure != nil {
		if herr := onFailure(ctx, job, cause); herr != nil {
			log.Error("Failure handler failed, job kept pending",
				zap.NamedError("cause", cause),
				zap.Error(herr),
			)
			delay := Delay(job.BackoffBase, 1)
			if rerr := s.store.Reschedule(ctx, job, s.now().Add(delay), cause.Error()); rerr != nil {
				log.Error("Failed to reschedule job", zap.Error(rerr))
			}
			return
		}
	}
	if err := s.store.MarkFailed(ctx, job, s.now(), cause.Error()); err != nil {
		log.Error("Failed to mark job failed", zap.Error(err))
		return
	}
	jobsProcessed.WithLabelValues(topic, "failed").Inc()
	log.Error("Job failed terminally", zap.Error(cause))
}

func (s *Service) safeProcess(ctx context.Context, w Worker, job *models.Job) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Worker panicked",
				zap.Stringer("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Process(ctx, job)
}
