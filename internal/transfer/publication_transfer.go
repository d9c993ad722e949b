package transfer

import "github.com/golang-jwt/jwt/v5"

// PublicationCreation is the create-publication request body. ScheduledAt is
// RFC 3339; empty means publish as soon as the queue picks it up.
type PublicationCreation struct {
	Provider      string   `json:"provider"`
	SocialTokenID int64    `json:"social_token_id"`
	MediaType     string   `json:"media_type"`
	MediaURL      string   `json:"media_url"`
	Caption       string   `json:"caption"`
	Hashtags      []string `json:"hashtags"`
	ScheduledAt   string   `json:"scheduled_at"`
	Draft         bool     `json:"draft"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
