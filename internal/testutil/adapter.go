package testutil

import (
	"context"
	"sync"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
)

// FakeAdapter is a scripted provider adapter. Publish pops one outcome per
// call from PublishOutcomes; when the script runs out it succeeds.
type FakeAdapter struct {
	mu sync.Mutex

	PublishOutcomes []error
	PublishCalls    int
	Result          provider.PublishResult

	Metrics      models.EngagementMetrics
	MetricsErr   error
	MetricsCalls int
	Refreshed    provider.RefreshedToken
	RefreshErr   error
	RefreshCalls int
	Posts        []provider.RecentPost
	RecentErr    error
	RecentCalls  int
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Result: provider.PublishResult{
			ProviderPostID:  "post_1",
			ProviderPostURL: "https://example.com/post_1",
		},
	}
}

func (f *FakeAdapter) Publish(ctx context.Context, acc *models.SocialAccount, req provider.PublishRequest) (*provider.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.PublishCalls
	f.PublishCalls++
	if call < len(f.PublishOutcomes) && f.PublishOutcomes[call] != nil {
		return nil, f.PublishOutcomes[call]
	}
	result := f.Result
	return &result, nil
}

func (f *FakeAdapter) FetchMetrics(ctx context.Context, acc *models.SocialAccount, providerPostID string) (*models.EngagementMetrics, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MetricsCalls++
	if f.MetricsErr != nil {
		return nil, nil, f.MetricsErr
	}
	metrics := f.Metrics
	return &metrics, nil, nil
}

func (f *FakeAdapter) RefreshToken(ctx context.Context, acc *models.SocialAccount) (*provider.RefreshedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	token := f.Refreshed
	return &token, nil
}

func (f *FakeAdapter) RecentPosts(ctx context.Context, acc *models.SocialAccount, n int) ([]provider.RecentPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RecentCalls++
	if f.RecentErr != nil {
		return nil, f.RecentErr
	}
	if n < len(f.Posts) {
		return f.Posts[:n], nil
	}
	return f.Posts, nil
}
