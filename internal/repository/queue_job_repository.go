package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/models"
)

type QueueJobRepository interface {
	Create(ctx context.Context, job *models.QueueJob) error
	GetByID(ctx context.Context, id string) (*models.QueueJob, error)
	// ListDue returns pending jobs with scheduled_at <= now, ordered
	// priority desc, scheduled_at asc, id asc.
	ListDue(ctx context.Context, now time.Time) ([]*models.QueueJob, error)
	// HasProcessing reports whether another job for the publication is in flight.
	HasProcessing(ctx context.Context, publicationID, excludeJobID string) (bool, error)
	// Claim moves a pending job to processing; ErrConflict if it was already taken.
	Claim(ctx context.Context, id string, now time.Time) error
	Update(ctx context.Context, job *models.QueueJob) error
	// DeleteFinishedBefore removes completed/dead jobs older than cutoff and
	// returns the number removed.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type queueJobRepository struct {
	db *sql.DB
}

func NewQueueJobRepository(db *sql.DB) QueueJobRepository {
	return &queueJobRepository{db: db}
}

const queueJobColumns = `id, publication_id, token_id, type, priority, provider, scheduled_at,
	attempts, max_attempts, status, error, payload, created_at, processed_at, completed_at`

func (r *queueJobRepository) Create(ctx context.Context, job *models.QueueJob) error {
	query := `
		INSERT INTO queue_jobs (id, publication_id, token_id, type, priority, provider,
			scheduled_at, attempts, max_attempts, status, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query, job.ID, job.PublicationID, job.TokenID, job.Type,
		job.Priority, job.Provider, job.ScheduledAt, job.Attempts, job.MaxAttempts,
		job.Status, job.Payload)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanQueueJob(row interface{ Scan(...any) error }) (*models.QueueJob, error) {
	var job models.QueueJob
	var publicationID, lastError sql.NullString
	var tokenID sql.NullInt64
	err := row.Scan(&job.ID, &publicationID, &tokenID, &job.Type, &job.Priority, &job.Provider,
		&job.ScheduledAt, &job.Attempts, &job.MaxAttempts, &job.Status, &lastError,
		&job.Payload, &job.CreatedAt, &job.ProcessedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	job.PublicationID = publicationID.String
	job.TokenID = tokenID.Int64
	job.Error = lastError.String
	return &job, nil
}

func (r *queueJobRepository) GetByID(ctx context.Context, id string) (*models.QueueJob, error) {
	query := `SELECT ` + queueJobColumns + ` FROM queue_jobs WHERE id = $1`
	job, err := scanQueueJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return job, nil
}

func (r *queueJobRepository) ListDue(ctx context.Context, now time.Time) ([]*models.QueueJob, error) {
	query := `
		SELECT ` + queueJobColumns + `
		FROM queue_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
			scheduled_at ASC,
			id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, models.JobStatusPending, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.QueueJob
	for rows.Next() {
		job, err := scanQueueJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *queueJobRepository) HasProcessing(ctx context.Context, publicationID, excludeJobID string) (bool, error) {
	query := `SELECT 1 FROM queue_jobs WHERE publication_id = $1 AND status = $2 AND id <> $3 LIMIT 1`

	var result int
	err := r.db.QueryRowContext(ctx, query, publicationID, models.JobStatusProcessing, excludeJobID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return true, nil
}

func (r *queueJobRepository) Claim(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE queue_jobs SET status = $1, processed_at = $2 WHERE id = $3 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, models.JobStatusProcessing, now, id, models.JobStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *queueJobRepository) Update(ctx context.Context, job *models.QueueJob) error {
	query := `
		UPDATE queue_jobs
		SET status = $1,
			scheduled_at = $2,
			attempts = $3,
			error = $4,
			processed_at = $5,
			completed_at = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query, job.Status, job.ScheduledAt, job.Attempts,
		job.Error, job.ProcessedAt, job.CompletedAt, job.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueJobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM queue_jobs
		WHERE status IN ($1, $2) AND COALESCE(completed_at, created_at) < $3
	`
	res, err := r.db.ExecContext(ctx, query, models.JobStatusCompleted, models.JobStatusDead, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
