// Package job holds the cron-driven producers. They only scan and enqueue;
// the actual work runs through the queue so it gets retry and backoff.
package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/queue"
	"github.com/postpulse/api/internal/repository"
)

// refreshWindow is how far ahead of token expiry a refresh is scheduled.
const refreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	accounts  repository.SocialAccountRepository
	scheduler *queue.Scheduler
}

func NewTokenRefreshJob(accounts repository.SocialAccountRepository, scheduler *queue.Scheduler) *TokenRefreshJob {
	return &TokenRefreshJob{accounts: accounts, scheduler: scheduler}
}

// Run enqueues a high-priority refresh-token job for every account whose
// token expires inside the window.
func (j *TokenRefreshJob) Run() {
	ctx := context.Background()
	now := time.Now()

	accounts, err := j.accounts.ListExpiring(ctx, now, now.Add(refreshWindow))
	if err != nil {
		slog.Error("token refresh scan", "error", err)
		return
	}

	for _, acc := range accounts {
		err := j.scheduler.Enqueue(ctx, &models.QueueJob{
			TokenID:  acc.ID,
			Type:     models.JobTypeRefreshToken,
			Priority: models.JobPriorityHigh,
			Provider: acc.Provider,
		})
		if err != nil {
			slog.Error("enqueueing token refresh", "account_id", acc.ID, "error", err)
		}
	}

	if len(accounts) > 0 {
		slog.Info("token refresh scan", "enqueued", len(accounts))
	}
}
