package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/testutil"
)

type fakeCollector struct {
	calls int
	err   error
}

func (f *fakeCollector) CollectNow(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.EngagementSnapshot{ID: "snap_1", PublicationID: publicationID}, nil
}

type schedulerFixture struct {
	scheduler *Scheduler
	jobs      *testutil.QueueJobRepo
	pubs      *testutil.PublicationRepo
	accounts  *testutil.SocialAccountRepo
	adapter   *testutil.FakeAdapter
	collector *fakeCollector
	now       time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		jobs:      testutil.NewQueueJobRepo(),
		pubs:      testutil.NewPublicationRepo(),
		accounts:  testutil.NewSocialAccountRepo(),
		adapter:   testutil.NewFakeAdapter(),
		collector: &fakeCollector{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	registry := provider.NewRegistry()
	registry.Register(models.ProviderInstagram, f.adapter)

	cfg := config.Scheduler{
		TickInterval: 5 * time.Second,
		Concurrency:  4,
		MaxAttempts:  3,
		BackoffBase:  30 * time.Second,
		BackoffCap:   time.Hour,
	}
	f.scheduler = NewScheduler(cfg, f.jobs, f.pubs, f.accounts, registry, f.collector)
	f.scheduler.now = func() time.Time { return f.now }
	f.scheduler.jitter = func(d time.Duration) time.Duration { return d }
	return f
}

func (f *schedulerFixture) addPublication(status string) *models.Publication {
	pub := &models.Publication{
		ID:            "pub_1",
		UserID:        7,
		Provider:      models.ProviderInstagram,
		SocialTokenID: 1,
		MediaType:     models.MediaTypeImage,
		MediaURL:      "https://cdn.example.com/a.jpg",
		Caption:       "hello",
		Status:        status,
		MaxRetries:    models.DefaultMaxRetries,
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

func TestEnqueueDefaults(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	job := &models.QueueJob{
		PublicationID: "pub_1",
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.JobPriorityNormal, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, 0, job.Attempts)
	assert.True(t, job.ScheduledAt.Equal(f.now))
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	f := newSchedulerFixture(t)

	err := f.scheduler.Enqueue(context.Background(), &models.QueueJob{Type: "sweep-floors"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestEnqueueRejectsUnknownProvider(t *testing.T) {
	f := newSchedulerFixture(t)

	err := f.scheduler.Enqueue(context.Background(), &models.QueueJob{
		Type:     models.JobTypePublish,
		Provider: "myspace",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusQueued)

	f.adapter.PublishOutcomes = []error{
		provider.NewError(provider.KindTransient, "instagram is down"),
		provider.NewError(provider.KindRateLimited, "slow down"),
	}

	job := &models.QueueJob{
		PublicationID: pub.ID,
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))

	// First attempt fails transiently: job re-scheduled with base backoff.
	f.scheduler.Tick(ctx)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.ScheduledAt.Equal(f.now.Add(30*time.Second)))

	gotPub, err := f.pubs.GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusFailed, gotPub.Status)
	assert.Equal(t, 1, gotPub.RetryCount)
	require.NotNil(t, gotPub.NextRetryAt)
	assert.False(t, gotPub.IsTerminal())

	// Second attempt fails rate-limited: backoff doubles.
	f.now = got.ScheduledAt
	f.scheduler.Tick(ctx)

	got, err = f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, got.ScheduledAt.Equal(f.now.Add(time.Minute)))

	// Third attempt succeeds.
	f.now = got.ScheduledAt
	f.scheduler.Tick(ctx)

	got, err = f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)

	gotPub, err = f.pubs.GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusPublished, gotPub.Status)
	assert.Equal(t, "post_1", gotPub.ProviderPostID)
	assert.Equal(t, 3, f.adapter.PublishCalls)

	// A successful publish seeds the first metrics collection.
	seeded, err := f.jobs.ListDue(ctx, f.now.Add(collectMetricsDelay))
	require.NoError(t, err)
	require.Len(t, seeded, 1)
	assert.Equal(t, models.JobTypeCollectMetrics, seeded[0].Type)
	assert.Equal(t, models.JobPriorityLow, seeded[0].Priority)
	assert.Equal(t, pub.ID, seeded[0].PublicationID)
}

func TestContentPolicyDeadLetters(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusQueued)

	f.adapter.PublishOutcomes = []error{
		provider.NewError(provider.KindContentPolicy, "caption rejected"),
	}

	job := &models.QueueJob{
		PublicationID: pub.ID,
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))
	f.scheduler.Tick(ctx)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, got.Status)
	assert.Equal(t, 1, got.Attempts)

	gotPub, err := f.pubs.GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusFailed, gotPub.Status)
	assert.Equal(t, 0, gotPub.RetryCount)
	assert.Nil(t, gotPub.NextRetryAt)
	assert.True(t, gotPub.IsTerminal())
	assert.Equal(t, 1, f.adapter.PublishCalls)
}

func TestExhaustedAttemptsDeadLetter(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusQueued)

	f.adapter.PublishOutcomes = []error{
		provider.NewError(provider.KindTransient, "boom"),
		provider.NewError(provider.KindTransient, "boom"),
		provider.NewError(provider.KindTransient, "boom"),
	}

	job := &models.QueueJob{
		PublicationID: pub.ID,
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))

	for i := 0; i < 3; i++ {
		f.scheduler.Tick(ctx)
		got, err := f.jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		f.now = got.ScheduledAt
	}

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDead, got.Status)
	assert.Equal(t, 3, got.Attempts)

	gotPub, err := f.pubs.GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusFailed, gotPub.Status)
	assert.True(t, gotPub.IsTerminal())
}

func TestAtMostOneJobInFlightPerPublication(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusQueued)

	first := &models.QueueJob{ID: "job_a", PublicationID: pub.ID, Type: models.JobTypePublish, Provider: models.ProviderInstagram}
	second := &models.QueueJob{ID: "job_b", PublicationID: pub.ID, Type: models.JobTypePublish, Provider: models.ProviderInstagram}
	require.NoError(t, f.scheduler.Enqueue(ctx, first))
	require.NoError(t, f.scheduler.Enqueue(ctx, second))

	started := make(chan struct{})
	gate := make(chan struct{})
	var handled int
	f.scheduler.handlers[models.JobTypePublish] = func(ctx context.Context, job *models.QueueJob) (string, error) {
		handled++
		started <- struct{}{}
		<-gate
		return "", nil
	}

	done := make(chan struct{})
	go func() {
		f.scheduler.Tick(ctx)
		close(done)
	}()

	<-started
	assert.Equal(t, 1, f.jobs.ProcessingCount(pub.ID))
	close(gate)
	<-done

	assert.Equal(t, 1, handled)

	gotSecond, err := f.jobs.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, gotSecond.Status)
	assert.Equal(t, 0, gotSecond.Attempts)
}

func TestDispatchOrder(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	low := &models.QueueJob{ID: "job_low", TokenID: 1, Type: models.JobTypeRefreshToken, Priority: models.JobPriorityLow}
	high := &models.QueueJob{ID: "job_high", TokenID: 1, Type: models.JobTypeRefreshToken, Priority: models.JobPriorityHigh}
	require.NoError(t, f.scheduler.Enqueue(ctx, low))
	require.NoError(t, f.scheduler.Enqueue(ctx, high))

	due, err := f.jobs.ListDue(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "job_high", due[0].ID)
	assert.Equal(t, "job_low", due[1].ID)
}

func TestCancelledPublicationJobIsNoop(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusCancelled)

	job := &models.QueueJob{
		PublicationID: pub.ID,
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))
	f.scheduler.Tick(ctx)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 0, f.adapter.PublishCalls)

	gotPub, err := f.pubs.GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationStatusCancelled, gotPub.Status)
}

func TestMissingPublicationJobIsNoop(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	job := &models.QueueJob{
		PublicationID: "gone",
		Type:          models.JobTypePublish,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))
	f.scheduler.Tick(ctx)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestCollectMetricsJob(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	pub := f.addPublication(models.PublicationStatusPublished)

	job := &models.QueueJob{
		PublicationID: pub.ID,
		Type:          models.JobTypeCollectMetrics,
		Provider:      models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))
	f.scheduler.Tick(ctx)

	assert.Equal(t, 1, f.collector.calls)
	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
}

func TestRefreshTokenJob(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.addPublication(models.PublicationStatusQueued)

	f.adapter.Refreshed = provider.RefreshedToken{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    f.now.Add(60 * 24 * time.Hour),
	}

	job := &models.QueueJob{
		TokenID:  1,
		Type:     models.JobTypeRefreshToken,
		Priority: models.JobPriorityHigh,
		Provider: models.ProviderInstagram,
	}
	require.NoError(t, f.scheduler.Enqueue(ctx, job))
	f.scheduler.Tick(ctx)

	assert.Equal(t, 1, f.adapter.RefreshCalls)
	account, err := f.accounts.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new-access", account.AccessToken)
	assert.Equal(t, "new-refresh", account.RefreshToken)
}

func TestCleanupKeepsPendingJobs(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()

	old := f.now.Add(-48 * time.Hour)
	finished := old
	f.jobs.Create(ctx, &models.QueueJob{ID: "done_old", Type: models.JobTypePublish, Status: models.JobStatusCompleted, CompletedAt: &finished})
	f.jobs.Create(ctx, &models.QueueJob{ID: "dead_old", Type: models.JobTypePublish, Status: models.JobStatusDead, CompletedAt: &finished})
	f.jobs.Create(ctx, &models.QueueJob{ID: "done_new", Type: models.JobTypePublish, Status: models.JobStatusCompleted, CompletedAt: &f.now})
	f.jobs.Create(ctx, &models.QueueJob{ID: "pending_old", Type: models.JobTypePublish, Status: models.JobStatusPending, CreatedAt: old, ScheduledAt: old})

	removed, err := f.scheduler.Cleanup(ctx, f.now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = f.jobs.GetByID(ctx, "pending_old")
	assert.NoError(t, err)
	_, err = f.jobs.GetByID(ctx, "done_new")
	assert.NoError(t, err)
}
