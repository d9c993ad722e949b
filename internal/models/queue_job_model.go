package models

import (
	"encoding/json"
	"time"
)

type QueueJob struct {
	ID            string          `db:"id" json:"id"`
	PublicationID string          `db:"publication_id" json:"publication_id,omitempty"`
	TokenID       int64           `db:"token_id" json:"token_id,omitempty"`
	Type          string          `db:"type" json:"type"`
	Priority      string          `db:"priority" json:"priority"`
	Provider      string          `db:"provider" json:"provider"`
	ScheduledAt   time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Attempts      int             `db:"attempts" json:"attempts"`
	MaxAttempts   int             `db:"max_attempts" json:"max_attempts"`
	Status        string          `db:"status" json:"status"`
	Error         string          `db:"error" json:"error,omitempty"`
	Payload       json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusDead       = "dead"
)

const (
	JobTypePublish        = "publish"
	JobTypeRefreshToken   = "refresh-token"
	JobTypeCollectMetrics = "collect-metrics"
)

const (
	JobPriorityHigh   = "high"
	JobPriorityNormal = "normal"
	JobPriorityLow    = "low"
)

const DefaultMaxAttempts = 3

// PriorityRank orders priorities for dispatch, lowest rank first.
func PriorityRank(priority string) int {
	switch priority {
	case JobPriorityHigh:
		return 0
	case JobPriorityNormal:
		return 1
	default:
		return 2
	}
}
