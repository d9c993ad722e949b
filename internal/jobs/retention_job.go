package job

import (
	"context"
	"log/slog"
	"time"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/queue"
	"github.com/postpulse/api/internal/service"
)

// RetentionJob is the storage-hygiene sweep: finished queue jobs and aged
// engagement snapshots past their cutoffs are removed.
type RetentionJob struct {
	schedulerCfg  config.Scheduler
	engagementCfg config.Engagement
	scheduler     *queue.Scheduler
	engagement    service.EngagementService
}

func NewRetentionJob(
	schedulerCfg config.Scheduler,
	engagementCfg config.Engagement,
	scheduler *queue.Scheduler,
	engagement service.EngagementService) *RetentionJob {
	return &RetentionJob{
		schedulerCfg:  schedulerCfg,
		engagementCfg: engagementCfg,
		scheduler:     scheduler,
		engagement:    engagement,
	}
}

func (j *RetentionJob) Run() {
	ctx := context.Background()
	now := time.Now()

	if _, err := j.scheduler.Cleanup(ctx, now.Add(-j.schedulerCfg.JobRetention)); err != nil {
		slog.Error("job retention sweep", "error", err)
	}

	_, err := j.engagement.Cleanup(ctx,
		now.Add(-j.engagementCfg.SnapshotRetention),
		j.engagementCfg.MaxSnapshotsPerPublication)
	if err != nil {
		slog.Error("snapshot retention sweep", "error", err)
	}
}
