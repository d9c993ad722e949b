package models

import (
	"time"

	"github.com/lib/pq"
)

type Publication struct {
	ID              string         `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	Provider        string         `db:"provider" json:"provider"`
	SocialTokenID   int64          `db:"social_token_id" json:"social_token_id"`
	MediaType       string         `db:"media_type" json:"media_type"`
	MediaURL        string         `db:"media_url" json:"media_url"`
	Caption         string         `db:"caption" json:"caption"`
	Hashtags        pq.StringArray `db:"hashtags" json:"hashtags"`
	Status          string         `db:"status" json:"status"`
	ProviderPostID  string         `db:"provider_post_id" json:"provider_post_id,omitempty"`
	ProviderPostURL string         `db:"provider_post_url" json:"provider_post_url,omitempty"`
	Error           string         `db:"error" json:"error,omitempty"`
	RetryCount      int            `db:"retry_count" json:"retry_count"`
	MaxRetries      int            `db:"max_retries" json:"max_retries"`
	NextRetryAt     *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ScheduledAt     *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time     `db:"published_at" json:"published_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	PublicationStatusDraft      = "draft"
	PublicationStatusQueued     = "queued"
	PublicationStatusProcessing = "processing"
	PublicationStatusPublished  = "published"
	PublicationStatusFailed     = "failed"
	PublicationStatusCancelled  = "cancelled"
)

const (
	ProviderInstagram = "instagram"
	ProviderTwitter   = "twitter"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeReel  = "reel"
)

const DefaultMaxRetries = 3

// IsTerminal reports whether the publication can never be dispatched again.
// A failed publication is terminal only once its retries are exhausted.
func (p *Publication) IsTerminal() bool {
	switch p.Status {
	case PublicationStatusPublished, PublicationStatusCancelled:
		return true
	case PublicationStatusFailed:
		// Retry-eligible failures carry a NextRetryAt; its absence means the
		// publication was dead-lettered or ran out of retries.
		return p.NextRetryAt == nil
	}
	return false
}
