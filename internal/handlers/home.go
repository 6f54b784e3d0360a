package handlers

import (
	"vslice/internal/models"
	"vslice/web/components"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// RecentLister lists the jobs shown on the home page.
type RecentLister interface {
	ListRecent(n int) []models.Job
}

// HomeHandler renders the upload form
type HomeHandler struct {
	jobs      RecentLister
	recent    int
	maxUpload string
}

// NewHomeHandler creates a new HomeHandler
func NewHomeHandler(jobs RecentLister, recent int, maxUpload string) *HomeHandler {
	return &HomeHandler{jobs: jobs, recent: recent, maxUpload: maxUpload}
}

// Show renders the home page
func (h *HomeHandler) Show(c echo.Context) error {
	return render(c, components.Home(h.jobs.ListRecent(h.recent), h.maxUpload))
}

func render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	return component.Render(c.Request().Context(), c.Response())
}
