package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
)

// MemoryJobRepository implements domain.JobRepository on a mutex-guarded map.
// It backs tests and credential-less deployments where no database is
// configured. Callers always receive copies, never the stored record.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.RequestID]; ok {
		return fmt.Errorf("job %s already exists", job.RequestID)
	}
	r.jobs[job.RequestID] = cloneJob(job)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, requestID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobRepository) Apply(_ context.Context, requestID string, upd domain.JobUpdate) (*domain.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[requestID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	applied := domain.MergeUpdate(job, upd, time.Now().UTC())
	return cloneJob(job), applied, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	clone := *job
	clone.Logs = append([]string(nil), job.Logs...)
	return &clone
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
