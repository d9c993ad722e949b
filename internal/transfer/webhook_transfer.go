package transfer

import (
	"time"

	"github.com/postpulse/api/internal/models"
)

// WebhookEvent is the normalized form of a provider metrics push, after the
// provider-specific envelope has been unwrapped.
type WebhookEvent struct {
	ProviderPostID  string                   `json:"provider_post_id"`
	Metrics         models.EngagementMetrics `json:"metrics"`
	ProviderMetrics map[string]any           `json:"provider_metrics,omitempty"`
	Timestamp       time.Time                `json:"timestamp"`
}

// InstagramWebhook is the Graph API change-notification envelope.
type InstagramWebhook struct {
	Entry []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MediaID     string `json:"media_id"`
				LikeCount   int    `json:"like_count"`
				CommentsNum int    `json:"comments_count"`
				Impressions int    `json:"impressions"`
				Reach       int    `json:"reach"`
				Saved       int    `json:"saved"`
				Shares      int    `json:"shares"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Events flattens the envelope into one normalized event per change.
func (w *InstagramWebhook) Events() []*WebhookEvent {
	var events []*WebhookEvent
	for _, entry := range w.Entry {
		ts := time.Unix(entry.Time, 0)
		for _, change := range entry.Changes {
			if change.Value.MediaID == "" {
				continue
			}
			events = append(events, &WebhookEvent{
				ProviderPostID: change.Value.MediaID,
				Metrics: models.EngagementMetrics{
					Likes:       change.Value.LikeCount,
					Comments:    change.Value.CommentsNum,
					Shares:      change.Value.Shares,
					Saves:       change.Value.Saved,
					Impressions: change.Value.Impressions,
					Reach:       change.Value.Reach,
				},
				ProviderMetrics: map[string]any{"field": change.Field},
				Timestamp:       ts,
			})
		}
	}
	return events
}

// TwitterWebhook is the account-activity payload carrying tweet metric updates.
type TwitterWebhook struct {
	TweetID   string    `json:"tweet_id"`
	Likes     int       `json:"favorite_count"`
	Replies   int       `json:"reply_count"`
	Retweets  int       `json:"retweet_count"`
	Bookmarks int       `json:"bookmark_count"`
	Views     int       `json:"view_count"`
	EventAt   time.Time `json:"event_at"`
}

func (w *TwitterWebhook) Event() *WebhookEvent {
	if w.TweetID == "" {
		return nil
	}
	return &WebhookEvent{
		ProviderPostID: w.TweetID,
		Metrics: models.EngagementMetrics{
			Likes:       w.Likes,
			Comments:    w.Replies,
			Shares:      w.Retweets,
			Saves:       w.Bookmarks,
			Impressions: w.Views,
			Reach:       w.Views,
		},
		Timestamp: w.EventAt,
	}
}
