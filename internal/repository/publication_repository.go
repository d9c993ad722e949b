package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/models"
)

type PublicationRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) error
	GetByID(ctx context.Context, id string) (*models.Publication, error)
	GetByProviderPostID(ctx context.Context, provider, providerPostID string) (*models.Publication, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Publication, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Publication, error)
	Update(ctx context.Context, pub *models.Publication) error
	Remove(ctx context.Context, id string) error
}

type publicationRepository struct {
	db *sql.DB
}

func NewPublicationRepository(db *sql.DB) PublicationRepository {
	return &publicationRepository{db: db}
}

const publicationColumns = `id, user_id, provider, social_token_id, media_type, media_url, caption,
	hashtags, status, provider_post_id, provider_post_url, error, retry_count, max_retries,
	next_retry_at, scheduled_at, published_at, created_at, updated_at`

func (r *publicationRepository) Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) error {
	query := `
		INSERT INTO publications (id, user_id, provider, social_token_id, media_type, media_url,
			caption, hashtags, status, retry_count, max_retries, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, pub.ID, pub.UserID, pub.Provider, pub.SocialTokenID,
			pub.MediaType, pub.MediaURL, pub.Caption, pub.Hashtags, pub.Status,
			pub.RetryCount, pub.MaxRetries, pub.ScheduledAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, pub.ID, pub.UserID, pub.Provider, pub.SocialTokenID,
			pub.MediaType, pub.MediaURL, pub.Caption, pub.Hashtags, pub.Status,
			pub.RetryCount, pub.MaxRetries, pub.ScheduledAt)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func scanPublication(row interface{ Scan(...any) error }) (*models.Publication, error) {
	var pub models.Publication
	var providerPostID, providerPostURL, lastError sql.NullString
	err := row.Scan(&pub.ID, &pub.UserID, &pub.Provider, &pub.SocialTokenID, &pub.MediaType,
		&pub.MediaURL, &pub.Caption, &pub.Hashtags, &pub.Status, &providerPostID,
		&providerPostURL, &lastError, &pub.RetryCount, &pub.MaxRetries, &pub.NextRetryAt,
		&pub.ScheduledAt, &pub.PublishedAt, &pub.CreatedAt, &pub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pub.ProviderPostID = providerPostID.String
	pub.ProviderPostURL = providerPostURL.String
	pub.Error = lastError.String
	return &pub, nil
}

func (r *publicationRepository) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = $1`
	pub, err := scanPublication(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return pub, nil
}

func (r *publicationRepository) GetByProviderPostID(ctx context.Context, provider, providerPostID string) (*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE provider = $1 AND provider_post_id = $2`
	pub, err := scanPublication(r.db.QueryRowContext(ctx, query, provider, providerPostID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return pub, nil
}

func (r *publicationRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *publicationRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE status = $1 AND published_at >= $2`
	return r.list(ctx, query, models.PublicationStatusPublished, since)
}

func (r *publicationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Publication, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pubs []*models.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

func (r *publicationRepository) Update(ctx context.Context, pub *models.Publication) error {
	query := `
		UPDATE publications
		SET status = $1,
			provider_post_id = $2,
			provider_post_url = $3,
			error = $4,
			retry_count = $5,
			next_retry_at = $6,
			published_at = $7,
			updated_at = $8
		WHERE id = $9
	`
	_, err := r.db.ExecContext(ctx, query, pub.Status, pub.ProviderPostID, pub.ProviderPostURL,
		pub.Error, pub.RetryCount, pub.NextRetryAt, pub.PublishedAt, time.Now(), pub.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publicationRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM publications WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
