package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"epcis-ingestion/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a batch job.
type CreateJobParams struct {
	OwnerID     string
	FileName    string
	FileSize    int64
	TotalEvents int
}

// CreateBatchJob inserts a queued job row.
func (s *Store) CreateBatchJob(ctx context.Context, p CreateJobParams) (models.BatchJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_jobs (id, owner_id, file_name, file_size, status, total_events, processed_events, failed_events, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
	`, id, p.OwnerID, p.FileName, p.FileSize, models.StatusQueued, p.TotalEvents, now)
	if err != nil {
		return models.BatchJob{}, fmt.Errorf("insert batch job: %w", err)
	}

	return models.BatchJob{
		ID:          id,
		OwnerID:     p.OwnerID,
		FileName:    p.FileName,
		FileSize:    p.FileSize,
		Status:      models.StatusQueued,
		TotalEvents: p.TotalEvents,
		CreatedAt:   now,
	}, nil
}

// GetBatchJob fetches a job by id.
func (s *Store) GetBatchJob(ctx context.Context, id string) (models.BatchJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, file_name, file_size, status, total_events, processed_events, failed_events, error_message, started_at, completed_at, created_at
		FROM batch_jobs WHERE id = $1
	`, id)
	return scanBatchJob(row)
}

// ListBatchJobs returns a reverse-chronological page of an owner's jobs.
func (s *Store) ListBatchJobs(ctx context.Context, ownerID string, limit, offset int) ([]models.BatchJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, file_name, file_size, status, total_events, processed_events, failed_events, error_message, started_at, completed_at, created_at
		FROM batch_jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.BatchJob, 0, limit)
	for rows.Next() {
		job, err := scanBatchJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkJobProcessing transitions a queued job to processing.
func (s *Store) MarkJobProcessing(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs SET status = $2, started_at = NOW() WHERE id = $1
	`, id, models.StatusProcessing)
	return err
}

// UpdateJobProgress flushes the per-event counters to the job row.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, processed, failed int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs SET processed_events = $2, failed_events = $3 WHERE id = $1
	`, id, processed, failed)
	return err
}

// MarkJobCompleted sets the terminal completed state with final counters.
func (s *Store) MarkJobCompleted(ctx context.Context, id string, processed, failed int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $2, processed_events = $3, failed_events = $4, completed_at = NOW(), error_message = NULL
		WHERE id = $1
	`, id, models.StatusCompleted, processed, failed)
	return err
}

// MarkJobFailed sets the terminal failed state with the pipeline error.
func (s *Store) MarkJobFailed(ctx context.Context, id string, processed, failed int, errorMessage string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $2, processed_events = $3, failed_events = $4, completed_at = NOW(), error_message = $5
		WHERE id = $1
	`, id, models.StatusFailed, processed, failed, errorMessage)
	return err
}

func scanBatchJob(row pgx.Row) (models.BatchJob, error) {
	var job models.BatchJob
	var errMsg pgtype.Text
	var startedAt, completedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &job.OwnerID, &job.FileName, &job.FileSize, &job.Status,
		&job.TotalEvents, &job.ProcessedEvents, &job.FailedEvents, &errMsg, &startedAt, &completedAt, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BatchJob{}, ErrNotFound
	}
	if err != nil {
		return models.BatchJob{}, fmt.Errorf("scan batch job: %w", err)
	}

	job.ErrorMessage = textPtr(errMsg)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
