package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"

	"vslice/internal/ffmpeg"
	"vslice/internal/models"
)

// CommandFunc creates the process for a job. Defaults to exec.CommandContext.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Publisher mirrors finished parts to remote storage and returns their keys.
type Publisher interface {
	Publish(ctx context.Context, jobID, dir string, files []string) ([]string, error)
}

var errShutdown = fmt.Errorf("%w: server shutting down", ErrCancelled)

type task struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Runner executes one ffmpeg segmentation process per job in the background.
type Runner struct {
	registry  *Registry
	bin       string
	command   CommandFunc
	publisher Publisher

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCommandFunc replaces process creation, used by tests.
func WithCommandFunc(fn CommandFunc) RunnerOption {
	return func(r *Runner) { r.command = fn }
}

// WithPublisher enables mirroring of finished parts.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner creates a Runner that drives jobs held in registry.
func NewRunner(registry *Registry, ffmpegBin string, opts ...RunnerOption) *Runner {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	r := &Runner{
		registry: registry,
		bin:      ffmpegBin,
		command:  exec.CommandContext,
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background task for a queued job and returns immediately.
func (r *Runner) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errShutdown
	}
	if _, live := r.tasks[id]; live {
		return ErrConflict
	}
	job, err := r.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusQueued {
		return fmt.Errorf("%w: job is %s", ErrConflict, job.Status)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[id] = t
	r.wg.Add(1)
	go r.run(ctx, id, t)
	return nil
}

// Cancel kills the process of a running job. The job ends failed with reason "cancelled".
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()

	if !ok {
		if _, err := r.registry.Get(id); err != nil {
			return err
		}
		return ErrNotRunning
	}
	t.cancel(ErrCancelled)
	return nil
}

// Wait blocks until the task of id has finished. Returns at once if none is live.
func (r *Runner) Wait(id string) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	r.mu.Unlock()
	if ok {
		<-t.done
	}
}

// Active returns the number of live tasks.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Shutdown cancels every live task and waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, t := range r.tasks {
		t.cancel(errShutdown)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context, id string, t *task) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Job %s panicked: %v", id, rec)
			r.fail(id, fmt.Errorf("internal error: %v", rec))
		}
		r.mu.Lock()
		delete(r.tasks, id)
		r.mu.Unlock()
		t.cancel(nil)
		close(t.done)
		r.wg.Done()
	}()

	job, err := r.registry.Update(id, func(j *models.Job) error {
		j.Status = models.JobStatusRunning
		j.Indeterminate = j.Duration <= 0
		j.Message = "processing"
		return nil
	})
	if err != nil {
		log.Printf("Job %s could not start: %v", id, err)
		return
	}

	if err := r.execute(ctx, job); err != nil {
		log.Printf("Job %s failed: %v", id, err)
		r.fail(id, err)
		return
	}
	log.Printf("Job %s completed", id)
}

func (r *Runner) execute(ctx context.Context, job models.Job) error {
	seg := &ffmpeg.SegmentCommand{
		Input:          job.SourcePath,
		OutputDir:      job.OutputDir,
		Pattern:        job.Pattern,
		SegmentSeconds: job.SegmentSeconds,
	}
	cmd := r.command(ctx, r.bin, seg.BuildArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &SpawnError{Bin: r.bin, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Bin: r.bin, Err: err}
	}
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return &SpawnError{Bin: r.bin, Err: err}
	}
	log.Printf("Job %s: %s", job.ID, seg.DryRun(r.bin))

	var diag ffmpeg.Diagnostics
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ffmpeg.ScanLines(stderr, diag.Add); err != nil {
			log.Printf("Job %s: reading diagnostics: %v", job.ID, err)
		}
	}()

	parser := ffmpeg.NewProgressParser(job.Duration)
	lastPercent, lastPart := -1.0, -1
	scanErr := ffmpeg.ScanLines(stdout, func(line string) {
		u, ok := parser.ParseLine(line)
		if !ok || !u.Known {
			return
		}
		part := ffmpeg.SegmentIndex(u.OutTime, job.SegmentSeconds, job.Duration)
		if u.Percent == lastPercent && part == lastPart {
			return
		}
		lastPercent, lastPart = u.Percent, part
		r.update(job.ID, func(j *models.Job) error {
			j.Progress = u.Percent
			j.Indeterminate = false
			j.Message = "writing " + ffmpeg.PartName(job.Pattern, part)
			return nil
		})
	})
	wg.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if scanErr != nil {
		log.Printf("Job %s: reading progress: %v", job.ID, scanErr)
	}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ProcessError{ExitCode: code, Diagnostic: diag.Last()}
	}

	outputs, err := ListOutputs(job.OutputDir, job.Pattern)
	if err != nil {
		return err
	}

	message := "Completed"
	var remote []string
	if r.publisher != nil && len(outputs) > 0 {
		r.update(job.ID, func(j *models.Job) error {
			j.Message = "uploading parts"
			return nil
		})
		keys, err := r.publisher.Publish(ctx, job.ID, job.OutputDir, outputs)
		if err != nil {
			log.Printf("Job %s: mirror failed: %v", job.ID, err)
			message = "Completed (mirror failed)"
		} else {
			remote = keys
		}
	}

	_, err = r.registry.Update(job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusCompleted
		j.Progress = 100
		j.Indeterminate = false
		j.Outputs = outputs
		j.Remote = remote
		j.Message = message
		return nil
	})
	return err
}

// update commits a change made while the task runs. A job that already
// ended is left alone.
func (r *Runner) update(id string, mutate func(*models.Job) error) {
	if _, err := r.registry.Update(id, mutate); err != nil && !errors.Is(err, ErrTerminal) {
		log.Printf("Job %s: could not record update: %v", id, err)
	}
}

func (r *Runner) fail(id string, cause error) {
	_, err := r.registry.Update(id, func(j *models.Job) error {
		j.Status = models.JobStatusFailed
		j.Error = cause.Error()
		j.Message = "Failed"
		return nil
	})
	if err != nil && !errors.Is(err, ErrTerminal) && !errors.Is(err, ErrNotFound) {
		log.Printf("Job %s: could not record failure: %v", id, err)
	}
}
