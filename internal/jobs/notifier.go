package jobs

import (
	"context"
	"time"

	"vslice/internal/models"
)

// Event is one progress notification delivered to a subscriber.
type Event struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Percent       float64  `json:"percent"`
	Indeterminate bool     `json:"indeterminate"`
	Message       string   `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
	Files         []string `json:"files,omitempty"`
	Version       uint64   `json:"version"`
	Terminal      bool     `json:"terminal"`
}

// EventFromJob converts a job snapshot into an Event.
func EventFromJob(job models.Job) Event {
	return Event{
		ID:            job.ID,
		Status:        job.Status,
		Percent:       job.Progress,
		Indeterminate: job.Indeterminate,
		Message:       job.Message,
		Error:         job.Error,
		Files:         job.Outputs,
		Version:       job.Version,
		Terminal:      job.IsTerminal(),
	}
}

// Notifier streams job changes to any number of independent subscribers.
type Notifier struct {
	registry *Registry
	interval time.Duration
}

// NewNotifier creates a Notifier. interval is the fallback re-check period.
func NewNotifier(registry *Registry, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Notifier{registry: registry, interval: interval}
}

// Subscribe returns a channel of events for job id. The first event is the
// current state; later events are sent only when the job version changes.
// The channel closes after the terminal event, when ctx is done or when
// the job is removed. Slow readers see coalesced updates.
func (n *Notifier) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	if _, err := n.registry.Get(id); err != nil {
		return nil, err
	}
	ch := make(chan Event, 1)
	go n.stream(ctx, id, ch)
	return ch, nil
}

func (n *Notifier) stream(ctx context.Context, id string, ch chan<- Event) {
	defer close(ch)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	var last uint64
	for {
		job, changed, err := n.registry.Watch(id)
		if err != nil {
			return
		}
		if job.Version != last {
			last = job.Version
			select {
			case ch <- EventFromJob(job):
			case <-ctx.Done():
				return
			}
		}
		if job.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}
