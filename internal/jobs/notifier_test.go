package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"vslice/internal/models"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(events))
		}
	}
}

func TestNotifierStreamsUntilTerminal(t *testing.T) {
	r := NewRegistry()
	job, _ := r.Create(models.Job{})
	n := NewNotifier(r, 20*time.Millisecond)

	ch, err := n.Subscribe(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	go func() {
		r.Update(job.ID, setStatus(models.JobStatusRunning))
		for _, p := range []float64{10, 35, 20, 80} {
			r.Update(job.ID, func(j *models.Job) error {
				j.Progress = p
				return nil
			})
			time.Sleep(5 * time.Millisecond)
		}
		r.Update(job.ID, func(j *models.Job) error {
			j.Status = models.JobStatusCompleted
			j.Outputs = []string{"part000.mp4"}
			return nil
		})
	}()

	events := collect(t, ch)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("percent decreased: %v -> %v", events[i-1].Percent, events[i].Percent)
		}
		if events[i].Version <= events[i-1].Version {
			t.Errorf("duplicate version %d", events[i].Version)
		}
	}
	last := events[len(events)-1]
	if !last.Terminal || last.Status != models.JobStatusCompleted || last.Percent != 100 {
		t.Errorf("last event = %+v", last)
	}
	if len(last.Files) != 1 {
		t.Errorf("files = %v", last.Files)
	}
}

func TestNotifierTerminalJobSendsOneEvent(t *testing.T) {
	r := NewRegistry()
	job, _ := r.Create(models.Job{})
	r.Update(job.ID, setStatus(models.JobStatusRunning))
	r.Update(job.ID, func(j *models.Job) error {
		j.Status = models.JobStatusFailed
		j.Error = "cancelled"
		return nil
	})

	ch, err := NewNotifier(r, time.Second).Subscribe(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	events := collect(t, ch)
	if len(events) != 1 || events[0].Error != "cancelled" {
		t.Errorf("events = %+v", events)
	}
}

func TestNotifierIndependentSubscribers(t *testing.T) {
	r := NewRegistry()
	job, _ := r.Create(models.Job{})
	n := NewNotifier(r, 20*time.Millisecond)

	a, _ := n.Subscribe(context.Background(), job.ID)
	b, _ := n.Subscribe(context.Background(), job.ID)

	r.Update(job.ID, setStatus(models.JobStatusRunning))
	r.Update(job.ID, setStatus(models.JobStatusCompleted))

	for _, ch := range []<-chan Event{a, b} {
		events := collect(t, ch)
		if len(events) == 0 || !events[len(events)-1].Terminal {
			t.Errorf("subscriber missed terminal event: %+v", events)
		}
	}
}

func TestNotifierContextCancel(t *testing.T) {
	r := NewRegistry()
	job, _ := r.Create(models.Job{})

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := NewNotifier(r, time.Second).Subscribe(ctx, job.ID)
	<-ch // initial snapshot
	cancel()
	collect(t, ch)
}

func TestNotifierRemovedJobEndsStream(t *testing.T) {
	r := NewRegistry()
	job, _ := r.Create(models.Job{})

	ch, _ := NewNotifier(r, time.Second).Subscribe(context.Background(), job.ID)
	<-ch
	r.Remove(job.ID)
	collect(t, ch)
}

func TestNotifierUnknownJob(t *testing.T) {
	_, err := NewNotifier(NewRegistry(), 0).Subscribe(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
