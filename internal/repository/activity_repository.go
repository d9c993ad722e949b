package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/models"
)

// ActivityRepository stores the 24-row follower-activity table the analytics
// engine recomputes. Derived data: safe to discard and rebuild.
type ActivityRepository interface {
	GetAll(ctx context.Context) ([]models.HourlyActivity, error)
	UpsertAll(ctx context.Context, rows []models.HourlyActivity) error
}

type activityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) GetAll(ctx context.Context) ([]models.HourlyActivity, error) {
	query := `SELECT hour, activity_score, updated_at FROM hourly_activity ORDER BY hour ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var result []models.HourlyActivity
	for rows.Next() {
		var row models.HourlyActivity
		if err := rows.Scan(&row.Hour, &row.ActivityScore, &row.UpdatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *activityRepository) UpsertAll(ctx context.Context, activityRows []models.HourlyActivity) error {
	query := `
		INSERT INTO hourly_activity (hour, activity_score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (hour) DO UPDATE SET activity_score = $2, updated_at = $3
	`
	now := time.Now()
	for _, row := range activityRows {
		if _, err := r.db.ExecContext(ctx, query, row.Hour, row.ActivityScore, now); err != nil {
			slog.Info(err.Error())
			return err
		}
	}
	return nil
}
