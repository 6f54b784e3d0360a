package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vslice/internal/models"
)

// Observer receives every committed job snapshot, outside the registry lock.
type Observer func(job models.Job)

type entry struct {
	job     models.Job
	changed chan struct{} // closed and replaced on every mutation
}

// Registry is the in-memory table of jobs for this process.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*entry
	order     []string
	observers []Observer
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*entry),
		now:  time.Now,
	}
}

// Observe registers fn to be called after every create and update.
// Must be called before the registry is shared.
func (r *Registry) Observe(fn Observer) {
	r.observers = append(r.observers, fn)
}

// Create inserts a new queued job. An empty ID is replaced by a UUID.
func (r *Registry) Create(job models.Job) (models.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = models.JobStatusQueued
	job.Progress = 0
	job.Version = 1
	job.StartedAt = nil
	job.CompletedAt = nil
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}

	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; exists {
		r.mu.Unlock()
		return models.Job{}, fmt.Errorf("%w: duplicate id %s", ErrConflict, job.ID)
	}
	r.jobs[job.ID] = &entry{job: job.Clone(), changed: make(chan struct{})}
	r.order = append(r.order, job.ID)
	r.mu.Unlock()

	r.notify(job)
	return job.Clone(), nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return e.job.Clone(), nil
}

// ListRecent returns up to n jobs, most recently created first. n <= 0 returns all.
func (r *Registry) ListRecent(n int) []models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.order) {
		n = len(r.order)
	}
	out := make([]models.Job, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.jobs[r.order[i]].job.Clone())
	}
	return out
}

// Update applies mutate to a copy of the job and commits it atomically.
//
// The committed record always satisfies: status follows
// queued -> running -> completed|failed, terminal records never change,
// progress never decreases and stays within [0, 100].
func (r *Registry) Update(id string, mutate func(job *models.Job) error) (models.Job, error) {
	r.mu.Lock()

	e, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return models.Job{}, ErrNotFound
	}
	prev := e.job
	if prev.IsTerminal() {
		r.mu.Unlock()
		return prev.Clone(), ErrTerminal
	}

	next := prev.Clone()
	if err := mutate(&next); err != nil {
		r.mu.Unlock()
		return prev.Clone(), err
	}
	if !validTransition(prev.Status, next.Status) {
		r.mu.Unlock()
		return prev.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}

	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	next.Version = prev.Version + 1
	next.Progress = clampProgress(prev.Progress, next.Progress)

	now := r.now()
	if next.Status == models.JobStatusRunning && next.StartedAt == nil {
		next.StartedAt = &now
	}
	if next.IsTerminal() {
		if next.CompletedAt == nil {
			next.CompletedAt = &now
		}
		if next.Status == models.JobStatusCompleted {
			next.Progress = 100
		}
		next.Indeterminate = false
	}

	e.job = next
	close(e.changed)
	e.changed = make(chan struct{})
	snapshot := next.Clone()
	r.mu.Unlock()

	r.notify(snapshot)
	return snapshot, nil
}

// Watch returns a snapshot together with a channel that is closed on the
// next change (or removal) of the job.
func (r *Registry) Watch(id string) (models.Job, <-chan struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.Job{}, nil, ErrNotFound
	}
	return e.job.Clone(), e.changed, nil
}

// Remove deletes a job. Watchers are woken and then see ErrNotFound.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return false
	}
	delete(r.jobs, id)
	close(e.changed)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of jobs held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) notify(job models.Job) {
	for _, fn := range r.observers {
		fn(job.Clone())
	}
}

// validTransition enforces the job state machine edges.
func validTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case models.JobStatusQueued:
		return to == models.JobStatusRunning
	case models.JobStatusRunning:
		return to == models.JobStatusCompleted || to == models.JobStatusFailed
	default:
		return false
	}
}

func clampProgress(prev, next float64) float64 {
	if next != next || next < prev { // NaN or regression
		next = prev
	}
	if next < 0 {
		return 0
	}
	if next > 100 {
		return 100
	}
	return next
}
