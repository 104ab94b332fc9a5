package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-ads/wizard/internal/models"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("generation job not found")

// JobStore persists generation job bookkeeping.
type JobStore interface {
	// Create stores job as queued, keeping job.ID when set.
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID, attempts int) error
	Complete(ctx context.Context, id uuid.UUID, result []byte, archiveKey string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// Repository is the PostgreSQL JobStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a generation job repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a queued job and fills its timestamps. A job without an id gets a new one.
func (r *Repository) Create(ctx context.Context, job *models.GenerationJob) error {
	const q = `INSERT INTO generation_jobs (id, user_id, status, request)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = models.JobQueued
	if err := r.pool.QueryRow(ctx, q, job.ID, job.UserID, job.Status, job.Request).
		Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// GetByID returns a job by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	const q = `SELECT id, user_id, status, request, result, COALESCE(error, ''), COALESCE(archive_key, ''),
		attempts, created_at, updated_at, completed_at
		FROM generation_jobs WHERE id = $1`
	var (
		j      models.GenerationJob
		result []byte
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(&j.ID, &j.UserID, &j.Status, &j.Request, &result, &j.Error,
		&j.ArchiveKey, &j.Attempts, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	j.Result = result
	return &j, nil
}

// MarkRunning moves a job to running and records the attempt number.
func (r *Repository) MarkRunning(ctx context.Context, id uuid.UUID, attempts int) error {
	return r.exec(ctx, `UPDATE generation_jobs SET status = $2, attempts = $3, updated_at = NOW() WHERE id = $1`,
		id, models.JobRunning, attempts)
}

// Complete stores the final structure and marks the job completed.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, result []byte, archiveKey string) error {
	return r.exec(ctx, `UPDATE generation_jobs
		SET status = $2, result = $3::jsonb, archive_key = NULLIF($4, ''), error = NULL,
			updated_at = NOW(), completed_at = NOW()
		WHERE id = $1`,
		id, models.JobCompleted, string(result), archiveKey)
}

// Fail marks the job failed with a reason.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return r.exec(ctx, `UPDATE generation_jobs SET status = $2, error = $3, updated_at = NOW(), completed_at = NOW() WHERE id = $1`,
		id, models.JobFailed, reason)
}

func (r *Repository) exec(ctx context.Context, q string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
