// Package provider holds the publish/metrics contract each social platform
// implements, and the tagged error kinds the scheduler classifies retries by.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/postpulse/api/internal/models"
)

type Kind string

const (
	KindContentPolicy Kind = "content_policy"
	KindRateLimited   Kind = "rate_limited"
	KindAuthExpired   Kind = "auth_expired"
	KindTransient     Kind = "transient"
	KindPermanent     Kind = "permanent"
)

// Error is the adapter failure surface. Kind is machine-readable and drives
// retry classification; Message is for logs only.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error. Unknown errors are treated as transient so the
// scheduler retries them conservatively up to the attempt cap.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// Retryable reports whether a failure of the given kind should be retried
// with backoff rather than dead-lettered.
func Retryable(kind Kind) bool {
	return kind == KindRateLimited || kind == KindTransient
}

// kindFromStatus maps a provider HTTP status to an error kind.
func kindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthExpired
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

type PublishRequest struct {
	MediaType string
	MediaURL  string
	Caption   string
	Hashtags  []string
}

type PublishResult struct {
	ProviderPostID  string
	ProviderPostURL string
}

type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RecentPost is one already-published item returned for performance analysis.
type RecentPost struct {
	ProviderPostID string
	Caption        string
	Likes          int
	Comments       int
	PostedAt       time.Time
}

type Adapter interface {
	Publish(ctx context.Context, acc *models.SocialAccount, req PublishRequest) (*PublishResult, error)
	FetchMetrics(ctx context.Context, acc *models.SocialAccount, providerPostID string) (*models.EngagementMetrics, map[string]any, error)
	RefreshToken(ctx context.Context, acc *models.SocialAccount) (*RefreshedToken, error)
	RecentPosts(ctx context.Context, acc *models.SocialAccount, n int) ([]RecentPost, error)
}

// Registry maps provider names to adapters. It is built once in main and
// passed by reference; there is no lazy global client cache.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, a Adapter) {
	r.adapters[name] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Known(name string) bool {
	_, ok := r.adapters[name]
	return ok
}
