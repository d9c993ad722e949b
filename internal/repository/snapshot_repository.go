package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/models"
)

type SnapshotRepository interface {
	Create(ctx context.Context, snap *models.EngagementSnapshot) error
	// ListByPublication returns up to limit snapshots, newest first.
	ListByPublication(ctx context.Context, publicationID string, limit int) ([]*models.EngagementSnapshot, error)
	Latest(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error)
	ListPublicationIDs(ctx context.Context) ([]string, error)
	// DeleteOlderThan removes snapshots collected before cutoff, returning the count.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// CapPerPublication keeps only the max most recent snapshots for one
	// publication, returning the count removed.
	CapPerPublication(ctx context.Context, publicationID string, max int) (int64, error)
}

type snapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

const snapshotColumns = `id, publication_id, provider, provider_post_id, likes, comments, shares,
	saves, impressions, reach, engagement_rate, provider_metrics, collected_at, collection_method`

func (r *snapshotRepository) Create(ctx context.Context, snap *models.EngagementSnapshot) error {
	providerMetrics, err := json.Marshal(snap.ProviderMetrics)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO engagement_snapshots (id, publication_id, provider, provider_post_id, likes,
			comments, shares, saves, impressions, reach, engagement_rate, provider_metrics,
			collected_at, collection_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query, snap.ID, snap.PublicationID, snap.Provider,
		snap.ProviderPostID, snap.Metrics.Likes, snap.Metrics.Comments, snap.Metrics.Shares,
		snap.Metrics.Saves, snap.Metrics.Impressions, snap.Metrics.Reach,
		snap.Metrics.EngagementRate, providerMetrics, snap.CollectedAt, snap.CollectionMethod)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*models.EngagementSnapshot, error) {
	var snap models.EngagementSnapshot
	var providerMetrics []byte
	err := row.Scan(&snap.ID, &snap.PublicationID, &snap.Provider, &snap.ProviderPostID,
		&snap.Metrics.Likes, &snap.Metrics.Comments, &snap.Metrics.Shares, &snap.Metrics.Saves,
		&snap.Metrics.Impressions, &snap.Metrics.Reach, &snap.Metrics.EngagementRate,
		&providerMetrics, &snap.CollectedAt, &snap.CollectionMethod)
	if err != nil {
		return nil, err
	}
	if len(providerMetrics) > 0 {
		if err := json.Unmarshal(providerMetrics, &snap.ProviderMetrics); err != nil {
			return nil, err
		}
	}
	return &snap, nil
}

func (r *snapshotRepository) ListByPublication(ctx context.Context, publicationID string, limit int) ([]*models.EngagementSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM engagement_snapshots
		WHERE publication_id = $1
		ORDER BY collected_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, publicationID, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.EngagementSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (r *snapshotRepository) Latest(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM engagement_snapshots
		WHERE publication_id = $1
		ORDER BY collected_at DESC, id DESC
		LIMIT 1
	`
	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, publicationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return snap, nil
}

func (r *snapshotRepository) ListPublicationIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT publication_id FROM engagement_snapshots`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *snapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM engagement_snapshots WHERE collected_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

func (r *snapshotRepository) CapPerPublication(ctx context.Context, publicationID string, max int) (int64, error) {
	query := `
		DELETE FROM engagement_snapshots
		WHERE publication_id = $1 AND id NOT IN (
			SELECT id FROM engagement_snapshots
			WHERE publication_id = $1
			ORDER BY collected_at DESC, id DESC
			LIMIT $2
		)
	`
	res, err := r.db.ExecContext(ctx, query, publicationID, max)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
