package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vslice/internal/jobs"

	"github.com/labstack/echo/v4"
)

// Subscriber opens a progress stream for a job.
type Subscriber interface {
	Subscribe(ctx context.Context, id string) (<-chan jobs.Event, error)
}

// ProgressHandler streams job progress as server-sent events
type ProgressHandler struct {
	notifier  Subscriber
	keepAlive time.Duration
}

// NewProgressHandler creates a new ProgressHandler
func NewProgressHandler(notifier Subscriber, keepAlive time.Duration) *ProgressHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &ProgressHandler{notifier: notifier, keepAlive: keepAlive}
}

// Stream writes one `data: {json}` event per change and ends after the
// terminal event. Comment lines keep idle proxies from closing the stream.
// GET /progress/:id
func (h *ProgressHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()

	events, err := h.notifier.Subscribe(ctx, c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
