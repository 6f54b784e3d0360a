package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vslice/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobRepositorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := models.Job{
		ID:             "job-1",
		SourceName:     "talk.mp4",
		Pattern:        "part%03d.mp4",
		ChunkMB:        500,
		Duration:       1000,
		Bitrate:        80_000_000,
		SegmentSeconds: 50,
		EstimatedParts: 20,
		Status:         models.JobStatusQueued,
		Version:        1,
		CreatedAt:      created,
	}
	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	started := created.Add(time.Second)
	completed := created.Add(time.Minute)
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.Message = "Completed"
	job.Outputs = []string{"part000.mp4", "part001.mp4"}
	job.Version = 5
	job.StartedAt = &started
	job.CompletedAt = &completed
	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	stale := job
	stale.Status = models.JobStatusRunning
	stale.Version = 3
	if err := repo.Save(ctx, stale); err != nil {
		t.Fatalf("Save stale: %v", err)
	}

	got, err := repo.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.Status != models.JobStatusCompleted || got.Version != 5 {
		t.Errorf("stale snapshot overwrote newer row: %s v%d", got.Status, got.Version)
	}
	if len(got.Outputs) != 2 || got.Outputs[1] != "part001.mp4" {
		t.Errorf("Outputs = %v", got.Outputs)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if got.SegmentSeconds != 50 || got.Bitrate != 80_000_000 {
		t.Errorf("plan fields = %+v", got)
	}

	missing, err := repo.GetByID(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v", missing, err)
	}
}

func TestJobRepositoryListing(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(openTestDB(t))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	statuses := []string{
		models.JobStatusCompleted,
		models.JobStatusFailed,
		models.JobStatusCompleted,
		models.JobStatusRunning,
	}
	for i, status := range statuses {
		job := models.Job{
			ID:         string(rune('a' + i)),
			SourceName: "clip.mp4",
			Pattern:    "part%03d.mp4",
			ChunkMB:    10,
			Status:     status,
			Version:    1,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Save(ctx, job); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "d" || recent[1].ID != "c" {
		t.Errorf("ListRecent = %+v", recent)
	}

	done, err := repo.ListByStatus(ctx, models.JobStatusCompleted, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(done) != 2 || done[0].ID != "c" {
		t.Errorf("ListByStatus = %+v", done)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[models.JobStatusCompleted] != 2 || counts[models.JobStatusFailed] != 1 || counts[models.JobStatusRunning] != 1 {
		t.Errorf("CountByStatus = %v", counts)
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := repo.GetByID(ctx, "a"); got != nil {
		t.Error("job still present after Delete")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}
