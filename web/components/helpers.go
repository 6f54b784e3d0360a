// Package components renders the HTML pages of the web UI.
package components

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"vslice/internal/models"
)

func statusClass(status string) string {
	return "status-" + status
}

func progressValue(progress float64) string {
	return strconv.FormatFloat(progress, 'f', 1, 64)
}

func jobURL(id string) templ.SafeURL {
	return templ.URL("/job/" + url.PathEscape(id))
}

func downloadURL(id, name string) templ.SafeURL {
	return templ.URL("/download/" + url.PathEscape(id) + "?f=" + url.QueryEscape(name))
}

func planSummary(job models.Job) string {
	s := fmt.Sprintf("%.2f MB parts, %.2fs each, ~%d parts from %.1fs of video",
		job.ChunkMB, job.SegmentSeconds, job.EstimatedParts, job.Duration)
	if d := job.Elapsed(); d > 0 {
		s += fmt.Sprintf(" · %s elapsed", d.Round(100*time.Millisecond))
	}
	return s
}
