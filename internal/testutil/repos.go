// Package testutil provides in-memory repository implementations and a
// scripted provider adapter for tests. The in-memory repositories honor the
// same contracts as the Postgres ones, including the conditional claim.
package testutil

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/postpulse/api/internal/models"
	"github.com/postpulse/api/internal/repository"
)

type PublicationRepo struct {
	mu   sync.Mutex
	pubs map[string]*models.Publication
}

func NewPublicationRepo() *PublicationRepo {
	return &PublicationRepo{pubs: make(map[string]*models.Publication)}
}

func (r *PublicationRepo) Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pub
	r.pubs[pub.ID] = &cp
	return nil
}

func (r *PublicationRepo) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub, ok := r.pubs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pub
	return &cp, nil
}

func (r *PublicationRepo) GetByProviderPostID(ctx context.Context, provider, providerPostID string) (*models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pub := range r.pubs {
		if pub.Provider == provider && pub.ProviderPostID == providerPostID {
			cp := *pub
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *PublicationRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Publication
	for _, pub := range r.pubs {
		if pub.UserID == userID {
			cp := *pub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *PublicationRepo) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Publication
	for _, pub := range r.pubs {
		if pub.Status == models.PublicationStatusPublished && pub.PublishedAt != nil && !pub.PublishedAt.Before(since) {
			cp := *pub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *PublicationRepo) Update(ctx context.Context, pub *models.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pubs[pub.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *pub
	r.pubs[pub.ID] = &cp
	return nil
}

func (r *PublicationRepo) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pubs, id)
	return nil
}

type QueueJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*models.QueueJob
}

func NewQueueJobRepo() *QueueJobRepo {
	return &QueueJobRepo{jobs: make(map[string]*models.QueueJob)}
}

func (r *QueueJobRepo) Create(ctx context.Context, job *models.QueueJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *QueueJobRepo) GetByID(ctx context.Context, id string) (*models.QueueJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *QueueJobRepo) ListDue(ctx context.Context, now time.Time) ([]*models.QueueJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.QueueJob
	for _, job := range r.jobs {
		if job.Status == models.JobStatusPending && !job.ScheduledAt.After(now) {
			cp := *job
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		pi, pj := models.PriorityRank(due[i].Priority), models.PriorityRank(due[j].Priority)
		if pi != pj {
			return pi < pj
		}
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (r *QueueJobRepo) HasProcessing(ctx context.Context, publicationID, excludeJobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.PublicationID == publicationID && job.Status == models.JobStatusProcessing && job.ID != excludeJobID {
			return true, nil
		}
	}
	return false, nil
}

func (r *QueueJobRepo) Claim(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		return repository.ErrConflict
	}
	job.Status = models.JobStatusProcessing
	processedAt := now
	job.ProcessedAt = &processedAt
	return nil
}

func (r *QueueJobRepo) Update(ctx context.Context, job *models.QueueJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *QueueJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, job := range r.jobs {
		if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusDead {
			continue
		}
		finishedAt := job.CreatedAt
		if job.CompletedAt != nil {
			finishedAt = *job.CompletedAt
		}
		if finishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// ProcessingCount reports how many jobs for the publication are in flight.
func (r *QueueJobRepo) ProcessingCount(publicationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, job := range r.jobs {
		if job.PublicationID == publicationID && job.Status == models.JobStatusProcessing {
			count++
		}
	}
	return count
}

type SnapshotRepo struct {
	mu    sync.Mutex
	snaps []*models.EngagementSnapshot
}

func NewSnapshotRepo() *SnapshotRepo {
	return &SnapshotRepo{}
}

func (r *SnapshotRepo) Create(ctx context.Context, snap *models.EngagementSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *snap
	r.snaps = append(r.snaps, &cp)
	return nil
}

func (r *SnapshotRepo) sortedByPublication(publicationID string) []*models.EngagementSnapshot {
	var out []*models.EngagementSnapshot
	for _, snap := range r.snaps {
		if snap.PublicationID == publicationID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.After(out[j].CollectedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *SnapshotRepo) ListByPublication(ctx context.Context, publicationID string, limit int) ([]*models.EngagementSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedByPublication(publicationID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	copies := make([]*models.EngagementSnapshot, len(out))
	for i, snap := range out {
		cp := *snap
		copies[i] = &cp
	}
	return copies, nil
}

func (r *SnapshotRepo) Latest(ctx context.Context, publicationID string) (*models.EngagementSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedByPublication(publicationID)
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := *out[0]
	return &cp, nil
}

func (r *SnapshotRepo) ListPublicationIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, snap := range r.snaps {
		if _, ok := seen[snap.PublicationID]; !ok {
			seen[snap.PublicationID] = struct{}{}
			ids = append(ids, snap.PublicationID)
		}
	}
	return ids, nil
}

func (r *SnapshotRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.EngagementSnapshot
	var removed int64
	for _, snap := range r.snaps {
		if snap.CollectedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	r.snaps = kept
	return removed, nil
}

func (r *SnapshotRepo) CapPerPublication(ctx context.Context, publicationID string, max int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := r.sortedByPublication(publicationID)
	if len(ordered) <= max {
		return 0, nil
	}
	drop := make(map[string]struct{})
	for _, snap := range ordered[max:] {
		drop[snap.ID] = struct{}{}
	}
	var kept []*models.EngagementSnapshot
	for _, snap := range r.snaps {
		if _, gone := drop[snap.ID]; gone {
			continue
		}
		kept = append(kept, snap)
	}
	r.snaps = kept
	return int64(len(drop)), nil
}

type SocialAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
}

func NewSocialAccountRepo() *SocialAccountRepo {
	return &SocialAccountRepo{accounts: make(map[int64]*models.SocialAccount)}
}

func (r *SocialAccountRepo) Put(acc *models.SocialAccount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *acc
	r.accounts[acc.ID] = &cp
}

func (r *SocialAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (r *SocialAccountRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, acc := range r.accounts {
		if !acc.TokenExpiresAt.Before(from) && !acc.TokenExpiresAt.After(to) {
			cp := *acc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SocialAccountRepo) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	acc.AccessToken = accessToken
	acc.RefreshToken = refreshToken
	acc.TokenExpiresAt = expiresAt
	return nil
}

type ActivityRepo struct {
	mu   sync.Mutex
	rows []models.HourlyActivity
}

func NewActivityRepo() *ActivityRepo {
	return &ActivityRepo{}
}

func (r *ActivityRepo) GetAll(ctx context.Context) ([]models.HourlyActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.HourlyActivity, len(r.rows))
	copy(out, r.rows)
	return out, nil
}

func (r *ActivityRepo) UpsertAll(ctx context.Context, rows []models.HourlyActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make([]models.HourlyActivity, len(rows))
	copy(r.rows, rows)
	return nil
}
