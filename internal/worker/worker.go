package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"vslice/internal/models"
)

// JobStore is the part of the job registry the janitor needs
type JobStore interface {
	ListRecent(n int) []models.Job
	Remove(id string) bool
}

// Cleaner deletes the files of a job
type Cleaner interface {
	RemoveJob(jobID string) error
}

// Janitor periodically prunes finished jobs and their files
type Janitor struct {
	jobs      JobStore
	cleaner   Cleaner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stop      chan struct{}
	once      sync.Once
	wg        sync.WaitGroup
}

// NewJanitor creates a new janitor. retention <= 0 disables pruning.
func NewJanitor(jobs JobStore, cleaner Cleaner, retention time.Duration) *Janitor {
	return &Janitor{
		jobs:      jobs,
		cleaner:   cleaner,
		retention: retention,
		interval:  10 * time.Minute,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

// SetInterval sets the sweep interval
func (j *Janitor) SetInterval(interval time.Duration) {
	if interval > 0 {
		j.interval = interval
	}
}

// Start begins sweeping
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		log.Println("Janitor disabled (retention = 0)")
		return
	}
	j.wg.Add(1)
	go j.run(ctx)
	log.Printf("Janitor started (retention %s, every %s)", j.retention, j.interval)
}

// Stop gracefully stops the janitor
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stop) })
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes every terminal job that finished more than retention ago
// and returns how many were pruned.
func (j *Janitor) Sweep() int {
	if j.retention <= 0 {
		return 0
	}
	cutoff := j.now().Add(-j.retention)

	pruned := 0
	for _, job := range j.jobs.ListRecent(0) {
		if !job.IsTerminal() || job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		if !j.jobs.Remove(job.ID) {
			continue
		}
		if err := j.cleaner.RemoveJob(job.ID); err != nil {
			log.Printf("Error removing files of job %s: %v", job.ID, err)
		}
		pruned++
	}

	if pruned > 0 {
		log.Printf("Janitor pruned %d job(s)", pruned)
	}
	return pruned
}
