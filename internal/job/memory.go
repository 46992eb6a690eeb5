package job

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in a map guarded by an RWMutex. Jobs are
// stored and returned as clones, so callers never share state with it.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*Job),
	}
}

// Save stores a clone of job, replacing any previous version.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[snapshot.ID] = snapshot
	return nil
}

// FindByID retrieves a job by its ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns all jobs, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// Delete removes a job.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

// DeleteTerminal removes terminal jobs whose CompletedAt is before cutoff.
func (r *MemoryRepository) DeleteTerminal(_ context.Context, cutoff time.Time) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*Job
	for id, job := range r.jobs {
		if !job.IsTerminal() || !job.CompletedAt.Before(cutoff) {
			continue
		}
		removed = append(removed, job)
		delete(r.jobs, id)
	}
	slices.SortFunc(removed, func(a, b *Job) int { return a.CompletedAt.Compare(b.CompletedAt) })
	return removed, nil
}
