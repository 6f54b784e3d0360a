package worker

import (
	"context"
	"testing"
	"time"

	"vslice/internal/jobs"
	"vslice/internal/models"
)

type fakeCleaner struct {
	removed []string
}

func (c *fakeCleaner) RemoveJob(jobID string) error {
	c.removed = append(c.removed, jobID)
	return nil
}

func finish(t *testing.T, r *jobs.Registry, status string) models.Job {
	t.Helper()
	job, _ := r.Create(models.Job{})
	r.Update(job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusRunning
		return nil
	})
	job, err := r.Update(job.ID, func(j *models.Job) error {
		j.Status = status
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestSweep(t *testing.T) {
	r := jobs.NewRegistry()
	cleaner := &fakeCleaner{}

	queued, _ := r.Create(models.Job{})
	done := finish(t, r, models.JobStatusCompleted)
	failed := finish(t, r, models.JobStatusFailed)

	j := NewJanitor(r, cleaner, time.Hour)

	j.now = func() time.Time { return time.Now().Add(30 * time.Minute) }
	if n := j.Sweep(); n != 0 {
		t.Errorf("pruned %d jobs before retention elapsed", n)
	}

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := j.Sweep(); n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	for _, id := range []string{done.ID, failed.ID} {
		if _, err := r.Get(id); err == nil {
			t.Errorf("job %s still registered", id)
		}
	}
	if _, err := r.Get(queued.ID); err != nil {
		t.Error("queued job was pruned")
	}
	if len(cleaner.removed) != 2 {
		t.Errorf("cleaned %v", cleaner.removed)
	}
}

func TestSweepDisabled(t *testing.T) {
	r := jobs.NewRegistry()
	finish(t, r, models.JobStatusCompleted)

	j := NewJanitor(r, &fakeCleaner{}, 0)
	j.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	if n := j.Sweep(); n != 0 {
		t.Errorf("pruned %d with retention disabled", n)
	}
	j.Start(context.Background())
	j.Stop()
}

func TestJanitorLoop(t *testing.T) {
	r := jobs.NewRegistry()
	cleaner := &fakeCleaner{}
	finish(t, r, models.JobStatusCompleted)

	j := NewJanitor(r, cleaner, time.Nanosecond)
	j.SetInterval(5 * time.Millisecond)
	j.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()
	j.Stop()

	if r.Len() != 0 {
		t.Error("janitor loop did not prune")
	}
}
