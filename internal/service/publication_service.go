package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/postpulse/api/internal/lifecycle"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/queue"
	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/transfer"
)

type PublicationService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PublicationCreation) (*models.Publication, error)
	Cancel(ctx context.Context, userID int64, publicationID string) (*models.Publication, error)
	Info(ctx context.Context, userID int64, publicationID string) (*models.Publication, error)
	List(ctx context.Context, userID int64) ([]*models.Publication, error)
}

type publicationService struct {
	pubs      repository.PublicationRepository
	accounts  repository.SocialAccountRepository
	scheduler *queue.Scheduler

	now func() time.Time
}

func NewPublicationService(
	pubs repository.PublicationRepository,
	accounts repository.SocialAccountRepository,
	scheduler *queue.Scheduler) PublicationService {
	return &publicationService{
		pubs:      pubs,
		accounts:  accounts,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Create validates the request, stores the publication and, unless it is a
// draft, enqueues the publish job at its scheduled time.
func (s *publicationService) Create(ctx context.Context, userID int64, pc *transfer.PublicationCreation) (*models.Publication, error) {
	if pc == nil {
		return nil, errors.New("publication data is nil")
	}
	if pc.Provider != models.ProviderInstagram && pc.Provider != models.ProviderTwitter {
		return nil, fmt.Errorf("unsupported provider %q", pc.Provider)
	}
	switch pc.MediaType {
	case models.MediaTypeImage, models.MediaTypeVideo, models.MediaTypeReel:
	default:
		return nil, fmt.Errorf("unsupported media type %q", pc.MediaType)
	}
	if pc.Caption == "" && pc.MediaURL == "" {
		return nil, errors.New("publication needs a caption or media")
	}

	account, err := s.accounts.GetByID(ctx, pc.SocialTokenID)
	if err != nil {
		return nil, fmt.Errorf("resolving social account: %w", err)
	}
	if account.UserID != userID {
		return nil, repository.ErrNotFound
	}
	if account.Provider != pc.Provider {
		return nil, fmt.Errorf("account %d belongs to provider %q", account.ID, account.Provider)
	}

	var scheduledAt *time.Time
	if pc.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, pc.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled time: %w", err)
		}
		scheduledAt = &parsed
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := s.now()
	pub := &models.Publication{
		ID:            id,
		UserID:        userID,
		Provider:      pc.Provider,
		SocialTokenID: pc.SocialTokenID,
		MediaType:     pc.MediaType,
		MediaURL:      pc.MediaURL,
		Caption:       pc.Caption,
		Hashtags:      pc.Hashtags,
		Status:        models.PublicationStatusDraft,
		MaxRetries:    models.DefaultMaxRetries,
		ScheduledAt:   scheduledAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if !pc.Draft {
		if err := lifecycle.Transition(pub, lifecycle.EventEnqueue, now, nil); err != nil {
			return nil, err
		}
	}

	if err := s.pubs.Create(ctx, nil, pub); err != nil {
		return nil, fmt.Errorf("error creating publication: %w", err)
	}

	if !pc.Draft {
		dispatchAt := now
		if scheduledAt != nil && scheduledAt.After(now) {
			dispatchAt = *scheduledAt
		}
		err = s.scheduler.Enqueue(ctx, &models.QueueJob{
			PublicationID: pub.ID,
			TokenID:       pub.SocialTokenID,
			Type:          models.JobTypePublish,
			Priority:      models.JobPriorityNormal,
			Provider:      pub.Provider,
			ScheduledAt:   dispatchAt,
		})
		if err != nil {
			return nil, fmt.Errorf("error enqueueing publish job: %w", err)
		}
		slog.Info("publication queued", "publication_id", pub.ID, "dispatch_at", dispatchAt)
	}

	return pub, nil
}

// Cancel transitions a draft or queued publication to cancelled. Its pending
// job, if any, becomes a no-op the next time the scheduler looks at it.
func (s *publicationService) Cancel(ctx context.Context, userID int64, publicationID string) (*models.Publication, error) {
	pub, err := s.pubs.GetByID(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	if pub.UserID != userID {
		return nil, repository.ErrNotFound
	}

	if err := lifecycle.Transition(pub, lifecycle.EventCancel, s.now(), nil); err != nil {
		return nil, err
	}
	if err := s.pubs.Update(ctx, pub); err != nil {
		return nil, err
	}

	slog.Info("publication cancelled", "publication_id", pub.ID)
	return pub, nil
}

func (s *publicationService) Info(ctx context.Context, userID int64, publicationID string) (*models.Publication, error) {
	pub, err := s.pubs.GetByID(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	if pub.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return pub, nil
}

func (s *publicationService) List(ctx context.Context, userID int64) ([]*models.Publication, error) {
	return s.pubs.ListByUserID(ctx, userID)
}
