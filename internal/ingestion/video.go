package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"

	"github.com/google/uuid"

	"vslice/internal/ffmpeg"
	"vslice/internal/models"
	"vslice/internal/plan"
	"vslice/internal/probe"
	"vslice/internal/workspace"
)

// ValidationError reports a bad upload request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Prober analyzes an uploaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// JobStore creates job records.
type JobStore interface {
	Create(job models.Job) (models.Job, error)
	Remove(id string) bool
}

// Starter launches the background task of a queued job.
type Starter interface {
	Start(id string) error
}

// VideoIngester turns an upload into a planned, running split job
type VideoIngester struct {
	jobs       JobStore
	runner     Starter
	prober     Prober
	workspace  *workspace.Workspace
	minSegment float64
	onUpload   func(bytes int64)
}

// NewVideoIngester creates a new VideoIngester
func NewVideoIngester(
	jobs JobStore,
	runner Starter,
	prober Prober,
	ws *workspace.Workspace,
	minSegment float64,
) *VideoIngester {
	return &VideoIngester{
		jobs:       jobs,
		runner:     runner,
		prober:     prober,
		workspace:  ws,
		minSegment: minSegment,
	}
}

// OnUpload registers a callback receiving the size of every saved upload.
func (i *VideoIngester) OnUpload(fn func(bytes int64)) {
	i.onUpload = fn
}

// IngestOptions contains options for video ingestion
type IngestOptions struct {
	Filename string    // client-supplied name, directories are stripped
	Reader   io.Reader // upload body
	ChunkMB  float64   // target part size in megabytes
	Pattern  string    // optional output name pattern, e.g. part%03d.mp4
}

// IngestResult contains the result of video ingestion
type IngestResult struct {
	Job models.Job
}

// Ingest saves the upload, probes it, plans the split and starts the job.
// A file that cannot be probed or planned leaves nothing behind.
func (i *VideoIngester) Ingest(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	if opts.Reader == nil {
		return nil, &ValidationError{Field: "file", Message: "no video file provided"}
	}
	if opts.ChunkMB <= 0 || math.IsNaN(opts.ChunkMB) || math.IsInf(opts.ChunkMB, 0) {
		return nil, &ValidationError{Field: "chunk_mb", Message: "must be a positive number"}
	}

	name := workspace.SanitizeFilename(opts.Filename)
	ext := filepath.Ext(name)
	pattern := opts.Pattern
	if pattern == "" {
		pattern = ffmpeg.DefaultPattern(ext)
	} else {
		if err := ffmpeg.ValidatePattern(pattern); err != nil {
			return nil, &ValidationError{Field: "pattern", Message: err.Error()}
		}
		pattern = ffmpeg.EnsureExtension(pattern, ext)
	}

	jobID := uuid.New().String()
	if err := i.workspace.InitJob(jobID); err != nil {
		return nil, err
	}

	job, err := i.prepare(ctx, jobID, name, pattern, opts)
	if err != nil {
		i.discard(jobID)
		return nil, err
	}

	if err := i.runner.Start(job.ID); err != nil {
		// queued never becomes terminal without a task, so drop the job
		i.jobs.Remove(job.ID)
		i.discard(jobID)
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	log.Printf("Job %s queued: %s (%s)", job.ID, job.SourceName, job.Message)

	return &IngestResult{Job: job}, nil
}

func (i *VideoIngester) discard(jobID string) {
	if err := i.workspace.RemoveJob(jobID); err != nil {
		log.Printf("Failed to clean up job %s: %v", jobID, err)
	}
}

func (i *VideoIngester) prepare(ctx context.Context, jobID, name, pattern string, opts IngestOptions) (models.Job, error) {
	sourcePath, size, err := i.workspace.SaveUpload(jobID, name, opts.Reader)
	if err != nil {
		return models.Job{}, err
	}
	if i.onUpload != nil {
		i.onUpload(size)
	}

	info, err := i.prober.Probe(ctx, sourcePath)
	if err != nil {
		var probeErr *probe.ProbeError
		if !errors.As(err, &probeErr) {
			err = &probe.ProbeError{Path: name, Err: err}
		}
		return models.Job{}, err
	}
	if info.Size <= 0 {
		info.Size = size
	}

	segment, err := plan.SegmentSeconds(plan.Input{
		ChunkMB:  opts.ChunkMB,
		Duration: info.Duration,
		Bitrate:  info.Bitrate,
		Size:     info.Size,
	}, i.minSegment)
	if err != nil {
		return models.Job{}, err
	}

	return i.jobs.Create(models.Job{
		ID:             jobID,
		SourcePath:     sourcePath,
		SourceName:     name,
		OutputDir:      i.workspace.OutputDir(jobID),
		Pattern:        pattern,
		ChunkMB:        opts.ChunkMB,
		Duration:       info.Duration,
		Bitrate:        info.Bitrate,
		Size:           info.Size,
		SegmentSeconds: segment,
		EstimatedParts: plan.EstimateParts(info.Duration, segment),
		Message:        plan.Describe(info.Duration, segment),
	})
}
