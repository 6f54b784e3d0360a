package handlers

import (
	"errors"
	"net/http"

	"vslice/internal/ingestion"
	"vslice/internal/jobs"
	"vslice/internal/plan"
	"vslice/internal/probe"

	"github.com/labstack/echo/v4"
)

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		validationErr *ingestion.ValidationError
		probeErr      *probe.ProbeError
		planErr       *plan.PlanError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &probeErr), errors.As(err, &planErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrNotReady),
		errors.Is(err, jobs.ErrConflict),
		errors.Is(err, jobs.ErrNotRunning),
		errors.Is(err, jobs.ErrTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides server paths carried by probe errors.
func errorMessage(err error) string {
	var probeErr *probe.ProbeError
	if errors.As(err, &probeErr) {
		return "could not analyze video: " + probeErr.Err.Error()
	}
	return err.Error()
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), map[string]string{"error": errorMessage(err)})
}
