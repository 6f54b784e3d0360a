package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"vslice/internal/ingestion"

	"github.com/labstack/echo/v4"
)

// UploadHandler handles video uploads
type UploadHandler struct {
	ingester *ingestion.VideoIngester
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(ingester *ingestion.VideoIngester) *UploadHandler {
	return &UploadHandler{ingester: ingester}
}

// Start handles a video upload and starts the split
// POST /start
func (h *UploadHandler) Start(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no video file uploaded"})
	}

	chunkMB, err := strconv.ParseFloat(strings.TrimSpace(c.FormValue("chunk_mb")), 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "chunk_mb must be a number"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open file"})
	}
	defer f.Close()

	result, err := h.ingester.Ingest(ctx, ingestion.IngestOptions{
		Filename: fh.Filename,
		Reader:   f,
		ChunkMB:  chunkMB,
		Pattern:  strings.TrimSpace(c.FormValue("pattern")),
	})
	if err != nil {
		return errorJSON(c, err)
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusAccepted, map[string]string{
			"job_id":  result.Job.ID,
			"message": result.Job.Message,
		})
	}
	return c.Redirect(http.StatusSeeOther, "/job/"+result.Job.ID)
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
