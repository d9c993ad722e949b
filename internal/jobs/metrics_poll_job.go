package job

import (
	"context"
	"log/slog"
	"time"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/queue"
	"github.com/postpulse/api/internal/repository"
)

// MetricsPollJob sweeps recently published items and enqueues low-priority
// collect-metrics jobs for each, the pull half of engagement reconciliation.
type MetricsPollJob struct {
	cfg       config.Engagement
	pubs      repository.PublicationRepository
	scheduler *queue.Scheduler
}

func NewMetricsPollJob(cfg config.Engagement, pubs repository.PublicationRepository, scheduler *queue.Scheduler) *MetricsPollJob {
	return &MetricsPollJob{cfg: cfg, pubs: pubs, scheduler: scheduler}
}

func (j *MetricsPollJob) Run() {
	ctx := context.Background()
	since := time.Now().Add(-j.cfg.PollWindow)

	pubs, err := j.pubs.ListPublishedSince(ctx, since)
	if err != nil {
		slog.Error("metrics poll scan", "error", err)
		return
	}

	enqueued := 0
	for _, pub := range pubs {
		if pub.ProviderPostID == "" {
			continue
		}
		err := j.scheduler.Enqueue(ctx, &models.QueueJob{
			PublicationID: pub.ID,
			TokenID:       pub.SocialTokenID,
			Type:          models.JobTypeCollectMetrics,
			Priority:      models.JobPriorityLow,
			Provider:      pub.Provider,
		})
		if err != nil {
			slog.Error("enqueueing metrics collection", "publication_id", pub.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		slog.Info("metrics poll scan", "enqueued", enqueued)
	}
}
