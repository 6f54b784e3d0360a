package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Workspace lays out per-job directories on the local filesystem:
//
//	<base>/uploads/<job id>/<original name>
//	<base>/outputs/<job id>/<parts>
type Workspace struct {
	BaseDir string
}

// New creates a Workspace rooted at baseDir.
func New(baseDir string) *Workspace {
	return &Workspace{BaseDir: baseDir}
}

// InitJob creates the upload and output directories of a job.
func (w *Workspace) InitJob(jobID string) error {
	for _, dir := range []string{w.UploadDir(jobID), w.OutputDir(jobID)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create job directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveUpload writes the uploaded file into the job's upload directory and
// returns its path and size.
func (w *Workspace) SaveUpload(jobID, filename string, reader io.Reader) (string, int64, error) {
	name := SanitizeFilename(filename)
	path := filepath.Join(w.UploadDir(jobID), name)

	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file %s: %w", path, err)
	}
	defer file.Close()

	n, err := io.Copy(file, reader)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, n, nil
}

// RemoveJob deletes everything stored for a job.
func (w *Workspace) RemoveJob(jobID string) error {
	var firstErr error
	for _, dir := range []string{w.UploadDir(jobID), w.OutputDir(jobID)} {
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return firstErr
}

// UploadDir returns the upload directory for a job.
func (w *Workspace) UploadDir(jobID string) string {
	return filepath.Join(w.BaseDir, "uploads", jobID)
}

// OutputDir returns the output directory for a job.
func (w *Workspace) OutputDir(jobID string) string {
	return filepath.Join(w.BaseDir, "outputs", jobID)
}

// SanitizeFilename strips directories from a client-supplied name.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload.bin"
	}
	return name
}
