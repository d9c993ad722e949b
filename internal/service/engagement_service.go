package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/repository"
	"github.com/postpulse/api/internal/transfer"
)

// EngagementService reconciles metrics arriving by webhook push and
// scheduled polling into one append-only snapshot history per publication.
type EngagementService interface {
	IngestWebhook(ctx context.Context, providerName string, event *transfer.WebhookEvent) error
	CollectNow(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error)
	GetEngagementSummary(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error)
	GetMetricsHistory(ctx context.Context, publicationID string, limit int) ([]*models.EngagementSnapshot, error)
	Cleanup(ctx context.Context, cutoff time.Time, maxPerPublication int) (int64, error)
}

type engagementService struct {
	cfg      config.Engagement
	pubs     repository.PublicationRepository
	snaps    repository.SnapshotRepository
	accounts repository.SocialAccountRepository
	registry *provider.Registry

	now func() time.Time
}

func NewEngagementService(
	cfg config.Engagement,
	pubs repository.PublicationRepository,
	snaps repository.SnapshotRepository,
	accounts repository.SocialAccountRepository,
	registry *provider.Registry) EngagementService {
	return &engagementService{
		cfg:      cfg,
		pubs:     pubs,
		snaps:    snaps,
		accounts: accounts,
		registry: registry,
		now:      time.Now,
	}
}

// IngestWebhook appends a snapshot from a provider push event. Webhooks are
// at-least-once and unauthoritative, so unresolvable events are dropped with
// a warning instead of retried.
func (s *engagementService) IngestWebhook(ctx context.Context, providerName string, event *transfer.WebhookEvent) error {
	if event == nil || event.ProviderPostID == "" {
		slog.Warn("webhook event without a post id dropped", "provider", providerName)
		return nil
	}

	pub, err := s.pubs.GetByProviderPostID(ctx, providerName, event.ProviderPostID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("webhook for unknown post dropped",
				"provider", providerName, "provider_post_id", event.ProviderPostID)
			return nil
		}
		return err
	}

	collectedAt := event.Timestamp
	if collectedAt.IsZero() {
		collectedAt = s.now()
	}

	return s.append(ctx, pub, &event.Metrics, event.ProviderMetrics, collectedAt, models.CollectionMethodWebhook)
}

// CollectNow forces an immediate metrics pull through the provider adapter.
func (s *engagementService) CollectNow(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error) {
	pub, err := s.pubs.GetByID(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	if pub.ProviderPostID == "" {
		// Not published yet, nothing to poll.
		return nil, repository.ErrNotFound
	}

	account, err := s.accounts.GetByID(ctx, pub.SocialTokenID)
	if err != nil {
		return nil, err
	}

	adapter, ok := s.registry.Get(pub.Provider)
	if !ok {
		return nil, fmt.Errorf("no adapter for provider %q", pub.Provider)
	}

	metrics, extras, err := adapter.FetchMetrics(ctx, account, pub.ProviderPostID)
	if err != nil {
		return nil, err
	}

	if err := s.append(ctx, pub, metrics, extras, s.now(), models.CollectionMethodPolling); err != nil {
		return nil, err
	}
	return s.snaps.Latest(ctx, pub.ID)
}

func (s *engagementService) append(ctx context.Context, pub *models.Publication, metrics *models.EngagementMetrics, extras map[string]any, collectedAt time.Time, method string) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	snap := &models.EngagementSnapshot{
		ID:               id,
		PublicationID:    pub.ID,
		Provider:         pub.Provider,
		ProviderPostID:   pub.ProviderPostID,
		ProviderMetrics:  extras,
		CollectedAt:      collectedAt,
		CollectionMethod: method,
	}
	if metrics != nil {
		snap.Metrics = *metrics
	}

	if err := s.snaps.Create(ctx, snap); err != nil {
		return err
	}
	slog.Info("engagement snapshot appended",
		"publication_id", pub.ID, "method", method, "collected_at", collectedAt)
	return nil
}

// GetEngagementSummary returns the most recent snapshot regardless of how
// it was collected.
func (s *engagementService) GetEngagementSummary(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error) {
	if _, err := s.pubs.GetByID(ctx, publicationID); err != nil {
		return nil, err
	}
	return s.snaps.Latest(ctx, publicationID)
}

func (s *engagementService) GetMetricsHistory(ctx context.Context, publicationID string, limit int) ([]*models.EngagementSnapshot, error) {
	if limit <= 0 {
		limit = s.cfg.MaxSnapshotsPerPublication
	}
	return s.snaps.ListByPublication(ctx, publicationID, limit)
}

// Cleanup enforces snapshot retention: anything older than cutoff goes, and
// each publication keeps at most maxPerPublication of what remains.
func (s *engagementService) Cleanup(ctx context.Context, cutoff time.Time, maxPerPublication int) (int64, error) {
	removed, err := s.snaps.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, err
	}

	if maxPerPublication > 0 {
		ids, err := s.snaps.ListPublicationIDs(ctx)
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			n, err := s.snaps.CapPerPublication(ctx, id, maxPerPublication)
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}

	if removed > 0 {
		slog.Info("snapshot cleanup", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
