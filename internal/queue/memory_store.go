package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

type memoryEntry struct {
	job models.Job
	seq int64
}

// MemoryStore is an in-process Store used by tests and single-binary development runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*memoryEntry
	seq  int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*memoryEntry)}
}

func cloneJob(j models.Job) *models.Job {
	c := j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	if j.LastError != nil {
		e := *j.LastError
		c.LastError = &e
	}
	if j.LockedAt != nil {
		t := *j.LockedAt
		c.LockedAt = &t
	}
	return &c
}

func (s *MemoryStore) Insert(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.jobs[job.ID] = &memoryEntry{job: *cloneJob(*job), seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneJob(e.job), nil
}

func (s *MemoryStore) Claim(_ context.Context, topic models.Topic, now time.Time, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*memoryEntry
	for _, e := range s.jobs {
		if e.job.Topic == topic && e.job.State == models.JobQueued && !e.job.NextRunAt.After(now) {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i].job, ready[j].job
		if !a.NextRunAt.Equal(b.NextRunAt) {
			return a.NextRunAt.Before(b.NextRunAt)
		}
		return ready[i].seq < ready[j].seq
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]*models.Job, 0, len(ready))
	for _, e := range ready {
		lockedAt := now
		e.job.State = models.JobRunning
		e.job.Attempts++
		e.job.LockedAt = &lockedAt
		e.job.UpdatedAt = now
		claimed = append(claimed, cloneJob(e.job))
	}
	return claimed, nil
}

// held returns the entry when job still owns its lease. Callers hold s.mu.
func (s *MemoryStore) held(job *models.Job) (*memoryEntry, error) {
	e, ok := s.jobs[job.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if e.job.State != models.JobRunning || e.job.LockedAt == nil || job.LockedAt == nil ||
		!e.job.LockedAt.Equal(*job.LockedAt) {
		return nil, ErrLeaseLost
	}
	return e, nil
}

func (s *MemoryStore) MarkSucceeded(_ context.Context, job *models.Job, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(job)
	if err != nil {
		return err
	}
	e.job.State = models.JobSucceeded
	e.job.LockedAt = nil
	e.job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Reschedule(_ context.Context, job *models.Job, nextRunAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(job)
	if err != nil {
		return err
	}
	e.job.State = models.JobQueued
	e.job.NextRunAt = nextRunAt
	e.job.LockedAt = nil
	e.job.LastError = &lastErr
	e.job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Release(_ context.Context, job *models.Job, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(job)
	if err != nil {
		return err
	}
	e.job.State = models.JobQueued
	e.job.NextRunAt = now
	e.job.LockedAt = nil
	if e.job.Attempts > 0 {
		e.job.Attempts--
	}
	e.job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, job *models.Job, now time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(job)
	if err != nil {
		return err
	}
	e.job.State = models.JobFailed
	e.job.LockedAt = nil
	e.job.LastError = &lastErr
	e.job.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Stuck(_ context.Context, olderThan time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []*models.Job
	for _, e := range s.jobs {
		if e.job.State == models.JobRunning && e.job.LockedAt != nil && e.job.LockedAt.Before(olderThan) {
			stuck = append(stuck, cloneJob(e.job))
		}
	}
	return stuck, nil
}

func (s *MemoryStore) CountByState(_ context.Context, topic models.Topic) (map[models.JobState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.JobState]int)
	for _, e := range s.jobs {
		if topic == "" || e.job.Topic == topic {
			counts[e.job.State]++
		}
	}
	return counts, nil
}

// Jobs returns a snapshot of every job on topic, oldest first.
func (s *MemoryStore) Jobs(topic models.Topic) []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []*memoryEntry
	for _, e := range s.jobs {
		if topic == "" || e.job.Topic == topic {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*models.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, cloneJob(e.job))
	}
	return out
}
