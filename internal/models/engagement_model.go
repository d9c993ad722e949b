package models

import "time"

type EngagementMetrics struct {
	Likes          int     `db:"likes" json:"likes"`
	Comments       int     `db:"comments" json:"comments"`
	Shares         int     `db:"shares" json:"shares"`
	Saves          int     `db:"saves" json:"saves"`
	Impressions    int     `db:"impressions" json:"impressions"`
	Reach          int     `db:"reach" json:"reach"`
	EngagementRate float64 `db:"engagement_rate" json:"engagement_rate"`
}

type EngagementSnapshot struct {
	ID               string            `db:"id" json:"id"`
	PublicationID    string            `db:"publication_id" json:"publication_id"`
	Provider         string            `db:"provider" json:"provider"`
	ProviderPostID   string            `db:"provider_post_id" json:"provider_post_id"`
	Metrics          EngagementMetrics `db:"metrics" json:"metrics"`
	ProviderMetrics  map[string]any    `db:"provider_metrics" json:"provider_metrics,omitempty"`
	CollectedAt      time.Time         `db:"collected_at" json:"collected_at"`
	CollectionMethod string            `db:"collection_method" json:"collection_method"`
}

const (
	CollectionMethodWebhook = "webhook"
	CollectionMethodPolling = "polling"
)
