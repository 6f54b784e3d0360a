package handlers

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"vslice/internal/delivery"
	"vslice/internal/jobs"

	"github.com/labstack/echo/v4"
)

// DownloadHandler serves the parts of completed jobs
type DownloadHandler struct {
	delivery *delivery.Service
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(svc *delivery.Service) *DownloadHandler {
	return &DownloadHandler{delivery: svc}
}

// File serves one part
// GET /download/:id?f=<name>
func (h *DownloadHandler) File(c echo.Context) error {
	path, err := h.delivery.Open(c.Param("id"), c.QueryParam("f"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.Attachment(path, filepath.Base(path))
}

// All streams every part as one zip archive
// GET /download_all/:id
func (h *DownloadHandler) All(c echo.Context) error {
	id := c.Param("id")

	outputs, err := h.delivery.ListOutputs(id)
	if err != nil {
		return errorJSON(c, err)
	}
	if len(outputs) == 0 {
		return errorJSON(c, jobs.ErrEmpty)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", delivery.ZipName(id)))
	res.WriteHeader(http.StatusOK)

	// Headers are sent; a failure now can only truncate the archive.
	if err := h.delivery.WriteZip(c.Request().Context(), id, res); err != nil {
		log.Printf("Zip of job %s aborted: %v", id, err)
	}
	return nil
}
