package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/testutil"
	"github.com/postpulse/api/internal/transfer"
)

type engagementFixture struct {
	svc      *engagementService
	pubs     *testutil.PublicationRepo
	snaps    *testutil.SnapshotRepo
	accounts *testutil.SocialAccountRepo
	adapter  *testutil.FakeAdapter
	now      time.Time
}

func newEngagementFixture(t *testing.T) *engagementFixture {
	t.Helper()

	f := &engagementFixture{
		pubs:     testutil.NewPublicationRepo(),
		snaps:    testutil.NewSnapshotRepo(),
		accounts: testutil.NewSocialAccountRepo(),
		adapter:  testutil.NewFakeAdapter(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	registry := provider.NewRegistry()
	registry.Register(models.ProviderInstagram, f.adapter)

	cfg := config.Engagement{MaxSnapshotsPerPublication: 500}
	f.svc = NewEngagementService(cfg, f.pubs, f.snaps, f.accounts, registry).(*engagementService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *engagementFixture) addPublishedPublication() *models.Publication {
	publishedAt := f.now.Add(-time.Hour)
	pub := &models.Publication{
		ID:             "pub_1",
		UserID:         7,
		Provider:       models.ProviderInstagram,
		SocialTokenID:  1,
		Status:         models.PublicationStatusPublished,
		ProviderPostID: "ig_123",
		PublishedAt:    &publishedAt,
	}
	f.pubs.Create(context.Background(), nil, pub)
	f.accounts.Put(&models.SocialAccount{
		ID:          1,
		UserID:      7,
		Provider:    models.ProviderInstagram,
		AccessToken: "token",
	})
	return pub
}

func TestCollectNowUnpublishedPublication(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()

	f.pubs.Create(ctx, nil, &models.Publication{
		ID:     "pub_draft",
		Status: models.PublicationStatusDraft,
	})

	_, err := f.svc.CollectNow(ctx, "pub_draft")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.snaps.Latest(ctx, "pub_draft")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, f.adapter.MetricsCalls)
}

func TestCollectNowAppendsPollingSnapshot(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()
	pub := f.addPublishedPublication()

	f.adapter.Metrics = models.EngagementMetrics{Likes: 42, Comments: 5, Reach: 900}

	snap, err := f.svc.CollectNow(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, pub.ID, snap.PublicationID)
	assert.Equal(t, "ig_123", snap.ProviderPostID)
	assert.Equal(t, models.CollectionMethodPolling, snap.CollectionMethod)
	assert.Equal(t, 42, snap.Metrics.Likes)
	assert.True(t, snap.CollectedAt.Equal(f.now))
}

func TestSummaryPrefersNewestSnapshot(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()
	pub := f.addPublishedPublication()

	// Webhook push first.
	require.NoError(t, f.svc.IngestWebhook(ctx, models.ProviderInstagram, &transfer.WebhookEvent{
		ProviderPostID: "ig_123",
		Metrics:        models.EngagementMetrics{Likes: 10},
		Timestamp:      f.now,
	}))

	// A later poll supersedes it.
	f.now = f.now.Add(10 * time.Minute)
	f.adapter.Metrics = models.EngagementMetrics{Likes: 20}
	_, err := f.svc.CollectNow(ctx, pub.ID)
	require.NoError(t, err)

	summary, err := f.svc.GetEngagementSummary(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionMethodPolling, summary.CollectionMethod)
	assert.Equal(t, 20, summary.Metrics.Likes)

	// And an even later webhook supersedes the poll.
	f.now = f.now.Add(10 * time.Minute)
	require.NoError(t, f.svc.IngestWebhook(ctx, models.ProviderInstagram, &transfer.WebhookEvent{
		ProviderPostID: "ig_123",
		Metrics:        models.EngagementMetrics{Likes: 30},
		Timestamp:      f.now,
	}))

	summary, err = f.svc.GetEngagementSummary(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionMethodWebhook, summary.CollectionMethod)
	assert.Equal(t, 30, summary.Metrics.Likes)
}

func TestIngestWebhookUnknownPostDropped(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()

	err := f.svc.IngestWebhook(ctx, models.ProviderInstagram, &transfer.WebhookEvent{
		ProviderPostID: "nobody_knows",
		Metrics:        models.EngagementMetrics{Likes: 10},
	})
	require.NoError(t, err)

	ids, err := f.snaps.ListPublicationIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMetricsHistoryNewestFirstWithLimit(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()
	pub := f.addPublishedPublication()

	for i := 0; i < 3; i++ {
		f.snaps.Create(ctx, &models.EngagementSnapshot{
			ID:            fmt.Sprintf("snap_%d", i),
			PublicationID: pub.ID,
			Metrics:       models.EngagementMetrics{Likes: 10 * (i + 1)},
			CollectedAt:   f.now.Add(time.Duration(i) * time.Hour),
		})
	}

	history, err := f.svc.GetMetricsHistory(ctx, pub.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 30, history[0].Metrics.Likes)
	assert.Equal(t, 20, history[1].Metrics.Likes)
}

func TestCleanupRetentionAndCap(t *testing.T) {
	f := newEngagementFixture(t)
	ctx := context.Background()
	pub := f.addPublishedPublication()

	cutoff := f.now.Add(-24 * time.Hour)

	// 5 stale snapshots past retention, 10 fresh ones.
	for i := 0; i < 5; i++ {
		f.snaps.Create(ctx, &models.EngagementSnapshot{
			ID:            fmt.Sprintf("stale_%d", i),
			PublicationID: pub.ID,
			CollectedAt:   cutoff.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	for i := 0; i < 10; i++ {
		f.snaps.Create(ctx, &models.EngagementSnapshot{
			ID:            fmt.Sprintf("fresh_%d", i),
			PublicationID: pub.ID,
			CollectedAt:   f.now.Add(-time.Duration(i) * time.Minute),
		})
	}

	removed, err := f.svc.Cleanup(ctx, cutoff, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(7), removed)

	remaining, err := f.snaps.ListByPublication(ctx, pub.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 8)

	// The survivors are the newest ones.
	latest, err := f.snaps.Latest(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh_0", latest.ID)
}
