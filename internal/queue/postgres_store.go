package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reelforge/internal/models"
)

const jobColumns = `id, topic, payload, attempts, max_attempts, backoff_base_ms, state, next_run_at,
	last_error, locked_at, created_at, updated_at`

const (
	insertJobQuery = `
		INSERT INTO jobs (id, topic, payload, attempts, max_attempts, backoff_base_ms, state, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	getJobQuery = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	claimJobsQuery = `
		UPDATE jobs SET state = 'RUNNING', attempts = attempts + 1, locked_at = $3, updated_at = $3
		WHERE id IN (
			SELECT id FROM jobs
			WHERE topic = $1 AND state = 'QUEUED' AND next_run_at <= $3
			ORDER BY next_run_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	markSucceededQuery = `
		UPDATE jobs SET state = 'SUCCEEDED', locked_at = NULL, updated_at = $3
		WHERE id = $1 AND state = 'RUNNING' AND locked_at = $2`

	rescheduleQuery = `
		UPDATE jobs SET state = 'QUEUED', locked_at = NULL, next_run_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'RUNNING' AND locked_at = $2`

	releaseQuery = `
		UPDATE jobs SET state = 'QUEUED', locked_at = NULL, next_run_at = $3, attempts = GREATEST(attempts - 1, 0), updated_at = $3
		WHERE id = $1 AND state = 'RUNNING' AND locked_at = $2`

	markFailedQuery = `
		UPDATE jobs SET state = 'FAILED', locked_at = NULL, last_error = $4, updated_at = $3
		WHERE id = $1 AND state = 'RUNNING' AND locked_at = $2`

	stuckJobsQuery = `SELECT ` + jobColumns + ` FROM jobs WHERE state = 'RUNNING' AND locked_at < $1`

	countByStateQuery = `SELECT state, COUNT(*) AS count FROM jobs WHERE ($1 = '' OR topic = $1) GROUP BY state`
)

// jobRow mirrors the jobs table; backoff is stored in milliseconds.
type jobRow struct {
	ID            uuid.UUID       `db:"id"`
	Topic         models.Topic    `db:"topic"`
	Payload       []byte          `db:"payload"`
	Attempts      int             `db:"attempts"`
	MaxAttempts   int             `db:"max_attempts"`
	BackoffBaseMS int64           `db:"backoff_base_ms"`
	State         models.JobState `db:"state"`
	NextRunAt     time.Time       `db:"next_run_at"`
	LastError     *string         `db:"last_error"`
	LockedAt      *time.Time      `db:"locked_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r jobRow) toModel() *models.Job {
	return &models.Job{
		ID:          r.ID,
		Topic:       r.Topic,
		Payload:     r.Payload,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		BackoffBase: time.Duration(r.BackoffBaseMS) * time.Millisecond,
		State:       r.State,
		NextRunAt:   r.NextRunAt,
		LastError:   r.LastError,
		LockedAt:    r.LockedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// PostgresStore keeps jobs in the jobs table. Claims use SKIP LOCKED so concurrent dispatchers
// never hand the same job to two workers.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("PgJobStore")}
}

func (s *PostgresStore) Insert(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx, insertJobQuery,
		job.ID, job.Topic, job.Payload, job.Attempts, job.MaxAttempts,
		job.BackoffBase.Milliseconds(), job.State, job.NextRunAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var row jobRow
	if err := pgxscan.Get(ctx, s.db, &row, getJobQuery, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *PostgresStore) Claim(ctx context.Context, topic models.Topic, now time.Time, limit int) ([]*models.Job, error) {
	var rows []jobRow
	if err := pgxscan.Select(ctx, s.db, &rows, claimJobsQuery, topic, limit, now); err != nil {
		return nil, fmt.Errorf("failed to claim jobs for topic %s: %w", topic, err)
	}
	jobs := make([]*models.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toModel())
	}
	// RETURNING does not preserve the subquery order.
	sortJobs(jobs)
	return jobs, nil
}

func (s *PostgresStore) transition(ctx context.Context, query string, job *models.Job, args ...any) error {
	if job.LockedAt == nil {
		return ErrLeaseLost
	}
	tag, err := s.db.Exec(ctx, query, append([]any{job.ID, *job.LockedAt}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, job.ID); errors.Is(getErr, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return ErrLeaseLost
	}
	return nil
}

func (s *PostgresStore) MarkSucceeded(ctx context.Context, job *models.Job, now time.Time) error {
	return s.transition(ctx, markSucceededQuery, job, now)
}

func (s *PostgresStore) Reschedule(ctx context.Context, job *models.Job, nextRunAt time.Time, lastErr string) error {
	return s.transition(ctx, rescheduleQuery, job, nextRunAt, lastErr)
}

func (s *PostgresStore) Release(ctx context.Context, job *models.Job, now time.Time) error {
	return s.transition(ctx, releaseQuery, job, now)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, job *models.Job, now time.Time, lastErr string) error {
	return s.transition(ctx, markFailedQuery, job, now, lastErr)
}

func (s *PostgresStore) Stuck(ctx context.Context, olderThan time.Time) ([]*models.Job, error) {
	var rows []jobRow
	if err := pgxscan.Select(ctx, s.db, &rows, stuckJobsQuery, olderThan); err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	jobs := make([]*models.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toModel())
	}
	return jobs, nil
}

func (s *PostgresStore) CountByState(ctx context.Context, topic models.Topic) (map[models.JobState]int, error) {
	var rows []struct {
		State models.JobState `db:"state"`
		Count int             `db:"count"`
	}
	if err := pgxscan.Select(ctx, s.db, &rows, countByStateQuery, string(topic)); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	counts := make(map[models.JobState]int, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

func sortJobs(jobs []*models.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].NextRunAt.Equal(jobs[j].NextRunAt) {
			return jobs[i].NextRunAt.Before(jobs[j].NextRunAt)
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
