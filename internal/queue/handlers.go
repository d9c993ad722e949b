package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpulse/api/internal/lifecycle"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/repository"
)

// collectMetricsDelay is how long after a successful publish the first
// engagement pull is scheduled.
const collectMetricsDelay = 15 * time.Minute

func (s *Scheduler) handlePublish(ctx context.Context, job *models.QueueJob) (string, error) {
	pub, err := s.pubs.GetByID(ctx, job.PublicationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "publication no longer exists", nil
		}
		return "", err
	}

	// Cooperative cancellation: a terminal publication turns its pending
	// job into a completed no-op.
	if pub.IsTerminal() {
		return fmt.Sprintf("publication %s is %s, nothing to do", pub.ID, pub.Status), nil
	}

	now := s.now()
	if pub.Status == models.PublicationStatusFailed {
		if err := lifecycle.Transition(pub, lifecycle.EventRequeue, now, nil); err != nil {
			return "", err
		}
	}
	if err := lifecycle.Transition(pub, lifecycle.EventClaim, now, nil); err != nil {
		return "", err
	}
	if err := s.pubs.Update(ctx, pub); err != nil {
		return "", err
	}

	account, err := s.accounts.GetByID(ctx, pub.SocialTokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = provider.NewError(provider.KindAuthExpired, "social account %d is gone", pub.SocialTokenID)
		}
		return "", err
	}

	adapter, ok := s.registry.Get(pub.Provider)
	if !ok {
		return "", provider.NewError(provider.KindPermanent, "no adapter for provider %q", pub.Provider)
	}

	result, err := adapter.Publish(ctx, account, provider.PublishRequest{
		MediaType: pub.MediaType,
		MediaURL:  pub.MediaURL,
		Caption:   pub.Caption,
		Hashtags:  pub.Hashtags,
	})
	if err != nil {
		return "", err
	}

	if err := lifecycle.Transition(pub, lifecycle.EventSucceed, s.now(), &lifecycle.SucceedResult{
		ProviderPostID:  result.ProviderPostID,
		ProviderPostURL: result.ProviderPostURL,
	}); err != nil {
		return "", err
	}
	if err := s.pubs.Update(ctx, pub); err != nil {
		return "", err
	}

	s.seedMetricsCollection(ctx, pub)

	slog.Info("publication published",
		"publication_id", pub.ID, "provider", pub.Provider, "provider_post_id", result.ProviderPostID)
	return "", nil
}

// seedMetricsCollection enqueues the first engagement pull for a freshly
// published item. Best effort: the cron sweep covers it if this fails.
func (s *Scheduler) seedMetricsCollection(ctx context.Context, pub *models.Publication) {
	job := &models.QueueJob{
		PublicationID: pub.ID,
		TokenID:       pub.SocialTokenID,
		Type:          models.JobTypeCollectMetrics,
		Priority:      models.JobPriorityLow,
		Provider:      pub.Provider,
		ScheduledAt:   s.now().Add(collectMetricsDelay),
	}
	if err := s.Enqueue(ctx, job); err != nil {
		slog.Warn("seeding metrics collection", "publication_id", pub.ID, "error", err)
	}
}

func (s *Scheduler) handleRefreshToken(ctx context.Context, job *models.QueueJob) (string, error) {
	account, err := s.accounts.GetByID(ctx, job.TokenID)
	if err != nil {
		return "", err
	}

	adapter, ok := s.registry.Get(account.Provider)
	if !ok {
		return "", provider.NewError(provider.KindPermanent, "no adapter for provider %q", account.Provider)
	}

	token, err := adapter.RefreshToken(ctx, account)
	if err != nil {
		return "", err
	}

	err = s.accounts.SetToken(ctx, account.ID, token.AccessToken, token.RefreshToken, token.ExpiresAt)
	if err != nil {
		return "", err
	}

	slog.Info("token refreshed", "account_id", account.ID, "provider", account.Provider)
	return "", nil
}

func (s *Scheduler) handleCollectMetrics(ctx context.Context, job *models.QueueJob) (string, error) {
	snap, err := s.collector.CollectNow(ctx, job.PublicationID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("snapshot %s collected", snap.ID), nil
}

// failPublication reflects a publish failure onto the owning publication.
// For retryable failures the publication re-enters the queue via its
// nextRetryAt; dead is true for permanent error kinds, which skip the retry
// bookkeeping entirely.
func (s *Scheduler) failPublication(ctx context.Context, job *models.QueueJob, cause error, delay time.Duration, dead bool) {
	if job.Type != models.JobTypePublish || job.PublicationID == "" {
		return
	}

	pub, err := s.pubs.GetByID(ctx, job.PublicationID)
	if err != nil {
		slog.Error("loading publication after failure", "publication_id", job.PublicationID, "error", err)
		return
	}
	if pub.Status != models.PublicationStatusProcessing {
		// The handler failed before claiming the publication; nothing to unwind.
		return
	}

	ev := lifecycle.EventFail
	if dead {
		ev = lifecycle.EventDead
	}
	err = lifecycle.Transition(pub, ev, s.now(), &lifecycle.FailInput{
		Reason:     cause.Error(),
		RetryDelay: delay,
	})
	if err != nil {
		slog.Error("recording publication failure", "publication_id", pub.ID, "error", err)
		return
	}
	if err := s.pubs.Update(ctx, pub); err != nil {
		slog.Error("persisting publication failure", "publication_id", pub.ID, "error", err)
	}
}
