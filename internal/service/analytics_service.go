package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/repository"
)

// defaultHourlyActivity is the baseline follower-activity heuristic, an
// activity score per hour of the day. It seeds the stored table the first
// time analytics runs and is replaced by whatever the table holds after.
var defaultHourlyActivity = [24]int{
	15, 10, 8, 5, 5, 8, // 00-05: overnight trough
	20, 35, 45, 50, 55, 65, // 06-11: morning ramp
	75, 70, 60, 55, 60, 70, // 12-17: lunch peak and afternoon
	85, 90, 80, 65, 45, 25, // 18-23: evening prime time
}

// DefaultDayMultipliers weights the hourly base score by day of week. The
// values are heuristic, not authoritative; callers may inject their own.
var DefaultDayMultipliers = map[time.Weekday]float64{
	time.Monday:    0.9,
	time.Tuesday:   1.0,
	time.Wednesday: 1.05,
	time.Thursday:  1.1,
	time.Friday:    1.0,
	time.Saturday:  0.95,
	time.Sunday:    0.85,
}

const bestTimesCacheTTL = time.Hour

type AnalyticsService interface {
	AnalyzeFollowerActivity(ctx context.Context) ([]models.HourlyActivity, error)
	CalculateBestPostingTimes(ctx context.Context) ([]models.PostingTime, error)
	GetOptimalSchedule(ctx context.Context, postsPerDay int) ([]models.ScheduleSlot, error)
	AnalyzePostPerformance(ctx context.Context, socialTokenID int64, n int) (*models.PostPerformance, error)
}

type analyticsService struct {
	activity repository.ActivityRepository
	accounts repository.SocialAccountRepository
	registry *provider.Registry
	cache    *redis.Client

	// DayMultipliers is the pluggable day-of-week weighting policy.
	DayMultipliers map[time.Weekday]float64

	now func() time.Time
	rng *rand.Rand
}

func NewAnalyticsService(
	activity repository.ActivityRepository,
	accounts repository.SocialAccountRepository,
	registry *provider.Registry,
	cache *redis.Client) AnalyticsService {
	return &analyticsService{
		activity:       activity,
		accounts:       accounts,
		registry:       registry,
		cache:          cache,
		DayMultipliers: DefaultDayMultipliers,
		now:            time.Now,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AnalyzeFollowerActivity recomputes and persists the 24-entry hourly table.
// The result is derived data: discarding the stored table just resets it to
// the baseline heuristic.
func (s *analyticsService) AnalyzeFollowerActivity(ctx context.Context) ([]models.HourlyActivity, error) {
	stored, err := s.activity.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	byHour := make(map[int]int, len(stored))
	for _, row := range stored {
		byHour[row.Hour] = row.ActivityScore
	}

	table := make([]models.HourlyActivity, 24)
	for hour := 0; hour < 24; hour++ {
		score, ok := byHour[hour]
		if !ok {
			score = defaultHourlyActivity[hour]
		}
		table[hour] = models.HourlyActivity{Hour: hour, ActivityScore: score}
	}

	if err := s.activity.UpsertAll(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// CalculateBestPostingTimes scores every hour of today and buckets it into a
// tier. The result is cached per weekday; Redis is a cache, never the source
// of truth, so cache failures only cost a recompute.
func (s *analyticsService) CalculateBestPostingTimes(ctx context.Context) ([]models.PostingTime, error) {
	day := s.now().Weekday()
	cacheKey := fmt.Sprintf("analytics:best-times:%d", int(day))

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []models.PostingTime
			if json.Unmarshal(raw, &cached) == nil && len(cached) == 24 {
				return cached, nil
			}
		}
	}

	table, err := s.AnalyzeFollowerActivity(ctx)
	if err != nil {
		return nil, err
	}

	multiplier, ok := s.DayMultipliers[day]
	if !ok {
		multiplier = 1.0
	}

	times := make([]models.PostingTime, 24)
	for _, row := range table {
		score := int(math.Round(float64(row.ActivityScore) * multiplier))
		times[row.Hour] = models.PostingTime{
			Hour:  row.Hour,
			Score: score,
			Tier:  scoreTier(score),
		}
	}

	sort.SliceStable(times, func(i, j int) bool {
		if times[i].Score != times[j].Score {
			return times[i].Score > times[j].Score
		}
		return times[i].Hour < times[j].Hour
	})

	if s.cache != nil {
		if raw, err := json.Marshal(times); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, bestTimesCacheTTL).Err(); err != nil {
				slog.Warn("caching best posting times", "error", err)
			}
		}
	}
	return times, nil
}

func scoreTier(score int) string {
	switch {
	case score >= 70:
		return models.TierExcellent
	case score >= 50:
		return models.TierGood
	case score >= 30:
		return models.TierFair
	default:
		return models.TierAvoid
	}
}

// GetOptimalSchedule picks the postsPerDay best hours and turns each into
// the next future timestamp at that hour. Minutes are randomized within the
// first half hour so accounts sharing a schedule don't publish on the same
// second.
func (s *analyticsService) GetOptimalSchedule(ctx context.Context, postsPerDay int) ([]models.ScheduleSlot, error) {
	if postsPerDay <= 0 {
		postsPerDay = 1
	}
	if postsPerDay > 24 {
		postsPerDay = 24
	}

	times, err := s.CalculateBestPostingTimes(ctx)
	if err != nil {
		return nil, err
	}

	top := make([]models.PostingTime, postsPerDay)
	copy(top, times[:postsPerDay])
	sort.Slice(top, func(i, j int) bool { return top[i].Hour < top[j].Hour })

	now := s.now()
	slots := make([]models.ScheduleSlot, 0, len(top))
	for _, t := range top {
		minute := s.rng.Intn(30)
		at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		slots = append(slots, models.ScheduleSlot{Hour: t.Hour, Score: t.Score, At: at})
	}
	return slots, nil
}

// AnalyzePostPerformance pulls the account's recent published items and
// scores each as likes + 2×comments. Best is an explicit max-by with a
// first-seen tie-break.
func (s *analyticsService) AnalyzePostPerformance(ctx context.Context, socialTokenID int64, n int) (*models.PostPerformance, error) {
	if n <= 0 {
		n = 10
	}

	account, err := s.accounts.GetByID(ctx, socialTokenID)
	if err != nil {
		return nil, err
	}
	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %q", account.Provider)
	}

	posts, err := adapter.RecentPosts(ctx, account, n)
	if err != nil {
		return nil, err
	}

	perf := &models.PostPerformance{Count: len(posts)}
	if len(posts) == 0 {
		return perf, nil
	}

	var total int
	var best *models.PerformanceItem
	for _, post := range posts {
		engagement := post.Likes + 2*post.Comments
		total += engagement
		if best == nil || engagement > best.Engagement {
			best = &models.PerformanceItem{
				ProviderPostID: post.ProviderPostID,
				Caption:        post.Caption,
				Likes:          post.Likes,
				Comments:       post.Comments,
				Engagement:     engagement,
				PostedAt:       post.PostedAt,
			}
		}
	}

	perf.AverageEngagement = float64(total) / float64(len(posts))
	perf.Best = best
	return perf, nil
}
