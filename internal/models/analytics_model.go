package models

import "time"

// HourlyActivity is one row of the stored follower-activity table,
// an activity score in [0, 100] for one hour of the day.
type HourlyActivity struct {
	Hour          int       `db:"hour" json:"hour"`
	ActivityScore int       `db:"activity_score" json:"activity_score"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type PostingTime struct {
	Hour  int    `json:"hour"`
	Score int    `json:"score"`
	Tier  string `json:"tier"`
}

const (
	TierExcellent = "excellent"
	TierGood      = "good"
	TierFair      = "fair"
	TierAvoid     = "avoid"
)

type ScheduleSlot struct {
	Hour  int       `json:"hour"`
	Score int       `json:"score"`
	At    time.Time `json:"at"`
}

type PostPerformance struct {
	Count             int              `json:"count"`
	AverageEngagement float64          `json:"average_engagement"`
	Best              *PerformanceItem `json:"best,omitempty"`
}

type PerformanceItem struct {
	ProviderPostID string    `json:"provider_post_id"`
	Caption        string    `json:"caption"`
	Likes          int       `json:"likes"`
	Comments       int       `json:"comments"`
	Engagement     int       `json:"engagement"`
	PostedAt       time.Time `json:"posted_at"`
}
