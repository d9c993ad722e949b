package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/testutil"
)

type analyticsFixture struct {
	svc      *analyticsService
	activity *testutil.ActivityRepo
	accounts *testutil.SocialAccountRepo
	adapter  *testutil.FakeAdapter
	now      time.Time
}

func newAnalyticsFixture(t *testing.T) *analyticsFixture {
	t.Helper()

	f := &analyticsFixture{
		activity: testutil.NewActivityRepo(),
		accounts: testutil.NewSocialAccountRepo(),
		adapter:  testutil.NewFakeAdapter(),
		// A Tuesday, so the day multiplier is 1.0 and scores equal the table.
		now: time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
	}

	registry := provider.NewRegistry()
	registry.Register(models.ProviderInstagram, f.adapter)

	f.svc = NewAnalyticsService(f.activity, f.accounts, registry, nil).(*analyticsService)
	f.svc.now = func() time.Time { return f.now }
	f.svc.rng = rand.New(rand.NewSource(1))
	return f
}

func TestAnalyzeFollowerActivityBaseline(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	table, err := f.svc.AnalyzeFollowerActivity(ctx)
	require.NoError(t, err)
	require.Len(t, table, 24)
	assert.Equal(t, 75, table[12].ActivityScore)
	assert.Equal(t, 90, table[19].ActivityScore)

	stored, err := f.activity.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 24)
}

func TestAnalyzeFollowerActivityKeepsStoredScores(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	require.NoError(t, f.activity.UpsertAll(ctx, []models.HourlyActivity{
		{Hour: 3, ActivityScore: 99},
	}))

	table, err := f.svc.AnalyzeFollowerActivity(ctx)
	require.NoError(t, err)
	require.Len(t, table, 24)
	assert.Equal(t, 99, table[3].ActivityScore)
	assert.Equal(t, 75, table[12].ActivityScore)
}

func TestCalculateBestPostingTimesOrderAndTiers(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	times, err := f.svc.CalculateBestPostingTimes(ctx)
	require.NoError(t, err)
	require.Len(t, times, 24)

	assert.Equal(t, 19, times[0].Hour)
	assert.Equal(t, 90, times[0].Score)
	assert.Equal(t, models.TierExcellent, times[0].Tier)
	assert.Equal(t, 18, times[1].Hour)
	assert.Equal(t, 20, times[2].Hour)

	// Scores never increase down the ranking; equal scores order by hour.
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i-1].Score, times[i].Score)
		if times[i-1].Score == times[i].Score {
			assert.Less(t, times[i-1].Hour, times[i].Hour)
		}
	}

	byHour := make(map[int]models.PostingTime, 24)
	for _, pt := range times {
		byHour[pt.Hour] = pt
	}
	assert.Equal(t, models.TierGood, byHour[9].Tier)   // 50
	assert.Equal(t, models.TierFair, byHour[8].Tier)   // 45
	assert.Equal(t, models.TierAvoid, byHour[3].Tier)  // 5

	// The ranking is stable across calls.
	again, err := f.svc.CalculateBestPostingTimes(ctx)
	require.NoError(t, err)
	assert.Equal(t, times, again)
}

func TestCalculateBestPostingTimesDayMultiplier(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	// Wednesday carries a 1.05 multiplier.
	f.now = time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC)

	times, err := f.svc.CalculateBestPostingTimes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 19, times[0].Hour)
	assert.Equal(t, 95, times[0].Score)
}

func TestGetOptimalScheduleSlots(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	slots, err := f.svc.GetOptimalSchedule(ctx, 3)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	// The three best hours, in chronological order.
	assert.Equal(t, 18, slots[0].Hour)
	assert.Equal(t, 19, slots[1].Hour)
	assert.Equal(t, 20, slots[2].Hour)

	for _, slot := range slots {
		assert.True(t, slot.At.After(f.now))
		assert.Equal(t, slot.Hour, slot.At.Hour())
		assert.GreaterOrEqual(t, slot.At.Minute(), 0)
		assert.Less(t, slot.At.Minute(), 30)
	}
}

func TestGetOptimalScheduleRollsPastHoursForward(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()
	f.now = time.Date(2025, 6, 3, 23, 30, 0, 0, time.UTC)

	slots, err := f.svc.GetOptimalSchedule(ctx, 2)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, slot := range slots {
		assert.True(t, slot.At.After(f.now))
		assert.Equal(t, 4, slot.At.Day())
	}
}

func TestGetOptimalScheduleClampsPostsPerDay(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	slots, err := f.svc.GetOptimalSchedule(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	slots, err = f.svc.GetOptimalSchedule(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, slots, 24)
}

func TestAnalyzePostPerformance(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	f.accounts.Put(&models.SocialAccount{
		ID:       1,
		UserID:   7,
		Provider: models.ProviderInstagram,
	})
	f.adapter.Posts = []provider.RecentPost{
		{ProviderPostID: "a", Likes: 10, Comments: 5}, // engagement 20
		{ProviderPostID: "b", Likes: 20, Comments: 0}, // engagement 20, ties with a
		{ProviderPostID: "c", Likes: 1, Comments: 1},  // engagement 3
	}

	perf, err := f.svc.AnalyzePostPerformance(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, perf.Count)
	assert.InDelta(t, 43.0/3.0, perf.AverageEngagement, 1e-9)

	// Equal engagement keeps the first-seen post as best.
	require.NotNil(t, perf.Best)
	assert.Equal(t, "a", perf.Best.ProviderPostID)
	assert.Equal(t, 20, perf.Best.Engagement)
}

func TestAnalyzePostPerformanceNoPosts(t *testing.T) {
	f := newAnalyticsFixture(t)
	ctx := context.Background()

	f.accounts.Put(&models.SocialAccount{
		ID:       1,
		Provider: models.ProviderInstagram,
	})

	perf, err := f.svc.AnalyzePostPerformance(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, perf.Count)
	assert.Nil(t, perf.Best)
	assert.Zero(t, perf.AverageEngagement)
}
