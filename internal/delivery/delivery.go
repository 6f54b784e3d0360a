// Package delivery serves the parts of completed jobs, one at a time or as a zip.
package delivery

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"vslice/internal/jobs"
	"vslice/internal/models"
)

// JobSource looks up job snapshots.
type JobSource interface {
	Get(id string) (models.Job, error)
}

// Service resolves downloads against the recorded outputs of a job.
type Service struct {
	jobs JobSource
}

// New creates a delivery Service.
func New(source JobSource) *Service {
	return &Service{jobs: source}
}

// ZipName is the attachment name of the archive for a job.
func ZipName(jobID string) string {
	return jobID + "_parts.zip"
}

// ListOutputs returns the part names of a completed job.
func (s *Service) ListOutputs(jobID string) ([]string, error) {
	job, err := s.completed(jobID)
	if err != nil {
		return nil, err
	}
	return job.Outputs, nil
}

// Open returns the path of one output. Only names recorded on the job are
// served, so the client can never address anything else on disk. A job that
// has not completed has no outputs yet and yields ErrNotFound.
func (s *Service) Open(jobID, name string) (string, error) {
	job, err := s.completed(jobID)
	if errors.Is(err, jobs.ErrNotReady) {
		return "", fmt.Errorf("%w: job %s has no outputs yet", jobs.ErrNotFound, jobID)
	}
	if err != nil {
		return "", err
	}
	if name == "" || !slices.Contains(job.Outputs, name) {
		return "", jobs.ErrNotFound
	}
	path := filepath.Join(job.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", jobs.ErrNotFound, name)
	}
	return path, nil
}

// WriteZip streams an archive of every output of a completed job into w.
// Parts are stored without recompression under their original names.
func (s *Service) WriteZip(ctx context.Context, jobID string, w io.Writer) error {
	job, err := s.completed(jobID)
	if err != nil {
		return err
	}
	if len(job.Outputs) == 0 {
		return jobs.ErrEmpty
	}

	zw := zip.NewWriter(w)
	for _, name := range job.Outputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(zw, filepath.Join(job.OutputDir, name), name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func (s *Service) completed(jobID string) (models.Job, error) {
	job, err := s.jobs.Get(jobID)
	if err != nil {
		return models.Job{}, err
	}
	if job.Status != models.JobStatusCompleted {
		return models.Job{}, jobs.ErrNotReady
	}
	return job, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Store

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
