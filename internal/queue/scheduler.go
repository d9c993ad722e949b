// Package queue is the durable job scheduler. Jobs live as QueueJob rows;
// each Tick claims due work with a conditional status update and fans it
// out to a bounded set of workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/postpulse/api/configs"
	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/provider"
	"github.com/postpulse/api/internal/repository"
)

// ValidationError rejects a malformed enqueue request. Never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// MetricsCollector is the engagement collector seam used by collect-metrics
// jobs; satisfied by service.EngagementService.
type MetricsCollector interface {
	CollectNow(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error)
}

// handlerFunc runs one claimed job. A nil error completes the job with the
// returned note; a non-nil error goes through retry classification.
type handlerFunc func(ctx context.Context, job *models.QueueJob) (string, error)

type Scheduler struct {
	cfg      config.Scheduler
	jobs     repository.QueueJobRepository
	pubs     repository.PublicationRepository
	accounts repository.SocialAccountRepository
	registry *provider.Registry

	collector MetricsCollector
	handlers  map[string]handlerFunc

	// now and jitter are swapped out in tests.
	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

func NewScheduler(
	cfg config.Scheduler,
	jobs repository.QueueJobRepository,
	pubs repository.PublicationRepository,
	accounts repository.SocialAccountRepository,
	registry *provider.Registry,
	collector MetricsCollector) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		jobs:      jobs,
		pubs:      pubs,
		accounts:  accounts,
		registry:  registry,
		collector: collector,
		now:       time.Now,
		jitter:    withJitter,
	}
	s.handlers = map[string]handlerFunc{
		models.JobTypePublish:        s.handlePublish,
		models.JobTypeRefreshToken:   s.handleRefreshToken,
		models.JobTypeCollectMetrics: s.handleCollectMetrics,
	}
	return s
}

// Enqueue validates and persists a new pending job, filling defaults for
// id, priority, attempt cap and earliest dispatch time.
func (s *Scheduler) Enqueue(ctx context.Context, job *models.QueueJob) error {
	if _, ok := s.handlers[job.Type]; !ok {
		return newValidationError("unrecognized job type %q", job.Type)
	}
	if job.Provider != "" && !s.registry.Known(job.Provider) {
		return newValidationError("unrecognized provider %q", job.Provider)
	}

	if job.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		job.ID = id
	}
	if job.Priority == "" {
		job.Priority = models.JobPriorityNormal
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = s.cfg.MaxAttempts
	}
	now := s.now()
	if job.ScheduledAt.IsZero() || job.ScheduledAt.Before(now) {
		job.ScheduledAt = now
	}
	job.Status = models.JobStatusPending
	job.Attempts = 0
	job.CreatedAt = now

	return s.jobs.Create(ctx, job)
}

// Tick selects all due pending jobs in dispatch order and processes them on
// a bounded worker pool. One job's failure never aborts the rest; claim
// conflicts just yield the job to the next tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	due, err := s.jobs.ListDue(ctx, now)
	if err != nil {
		slog.Error("tick: listing due jobs", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.cfg.Concurrency)

	for _, job := range due {
		if job.PublicationID != "" {
			inFlight, err := s.jobs.HasProcessing(ctx, job.PublicationID, job.ID)
			if err != nil {
				slog.Error("tick: in-flight check", "job_id", job.ID, "error", err)
				continue
			}
			if inFlight {
				continue
			}
		}

		if err := s.jobs.Claim(ctx, job.ID, now); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				slog.Error("tick: claiming job", "job_id", job.ID, "error", err)
			}
			continue
		}
		job.Status = models.JobStatusProcessing
		processedAt := now
		job.ProcessedAt = &processedAt

		wg.Add(1)
		semaphore <- struct{}{}
		go func(job *models.QueueJob) {
			defer wg.Done()
			defer func() { <-semaphore }()
			s.process(ctx, job)
		}(job)
	}

	wg.Wait()
}

func (s *Scheduler) process(ctx context.Context, job *models.QueueJob) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job handler panicked", "job_id", job.ID, "panic", r)
			s.failJob(ctx, job, fmt.Errorf("handler panic: %v", r))
		}
	}()

	handler := s.handlers[job.Type]
	note, err := handler(ctx, job)
	if err != nil {
		s.failJob(ctx, job, err)
		return
	}
	s.completeJob(ctx, job, note)
}

// completeJob marks the job done. For publish jobs the handler has already
// advanced the publication.
func (s *Scheduler) completeJob(ctx context.Context, job *models.QueueJob, note string) {
	now := s.now()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	job.Error = note
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("completing job", "job_id", job.ID, "error", err)
	}
}

// failJob classifies the failure and either re-schedules with backoff or
// dead-letters the job, updating the owning publication either way.
func (s *Scheduler) failJob(ctx context.Context, job *models.QueueJob, cause error) {
	kind := provider.KindOf(cause)
	if errors.Is(cause, repository.ErrNotFound) {
		// A missing dispatch target never heals by retrying.
		kind = provider.KindPermanent
	}

	job.Attempts++
	job.Error = cause.Error()
	now := s.now()

	if provider.Retryable(kind) && job.Attempts < job.MaxAttempts {
		delay := s.jitter(backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, job.Attempts-1))
		job.Status = models.JobStatusPending
		job.ScheduledAt = now.Add(delay)
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.Error("re-scheduling job", "job_id", job.ID, "error", err)
		}
		s.failPublication(ctx, job, cause, delay, false)
		slog.Warn("job retry scheduled",
			"job_id", job.ID, "type", job.Type, "kind", string(kind),
			"attempts", job.Attempts, "next_at", job.ScheduledAt)
		return
	}

	job.Status = models.JobStatusDead
	job.CompletedAt = &now
	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("dead-lettering job", "job_id", job.ID, "error", err)
	}
	s.failPublication(ctx, job, cause, 0, !provider.Retryable(kind))
	slog.Error("job dead-lettered",
		"job_id", job.ID, "type", job.Type, "kind", string(kind), "attempts", job.Attempts)
}

// Cleanup removes completed and dead jobs past the retention cutoff.
// Pending and processing jobs are never touched.
func (s *Scheduler) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("queue cleanup", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
