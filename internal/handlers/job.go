package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"vslice/internal/jobs"
	"vslice/internal/models"
	"vslice/internal/storage"
	"vslice/web/components"

	"github.com/labstack/echo/v4"
)

// JobGetter looks up live jobs.
type JobGetter interface {
	Get(id string) (models.Job, error)
}

// Canceler stops running jobs.
type Canceler interface {
	Cancel(id string) error
}

// JobHandler はジョブAPIとジョブページのハンドラー
type JobHandler struct {
	live   JobGetter
	runner Canceler
	repo   *storage.JobRepository
}

// NewJobHandler は新しいJobHandlerを作成
func NewJobHandler(live JobGetter, runner Canceler, repo *storage.JobRepository) *JobHandler {
	return &JobHandler{live: live, runner: runner, repo: repo}
}

// List はジョブ履歴の一覧を取得
func (h *JobHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	status := c.QueryParam("status")

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var list []models.Job
	var err error

	if status != "" {
		list, err = h.repo.ListByStatus(ctx, status, limit)
	} else {
		list, err = h.repo.ListRecent(ctx, limit)
	}

	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if list == nil {
		list = []models.Job{}
	}

	return c.JSON(http.StatusOK, list)
}

// Get はジョブを取得（実行中のレコードを優先し、なければ履歴）
func (h *JobHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	job, err := h.live.Get(id)
	if err == nil {
		return c.JSON(http.StatusOK, job)
	}
	if !errors.Is(err, jobs.ErrNotFound) {
		return errorJSON(c, err)
	}

	archived, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if archived == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	return c.JSON(http.StatusOK, archived)
}

// Stats はジョブ統計を取得
func (h *JobHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, counts)
}

// Delete はジョブ履歴を削除（実行中のジョブは削除できない）
func (h *JobHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if job, err := h.live.Get(id); err == nil && !job.IsTerminal() {
		return errorJSON(c, fmt.Errorf("%w: job %s is %s", jobs.ErrConflict, id, job.Status))
	}

	archived, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if archived == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

// Page はジョブ詳細ページを表示
func (h *JobHandler) Page(c echo.Context) error {
	job, err := h.live.Get(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return c.String(http.StatusNotFound, "Job not found")
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return render(c, components.JobView(job))
}

// Cancel は実行中のジョブを中止する
func (h *JobHandler) Cancel(c echo.Context) error {
	id := c.Param("id")

	if err := h.runner.Cancel(id); err != nil {
		return errorJSON(c, err)
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusAccepted, map[string]string{"job_id": id, "message": "cancelling"})
	}
	return c.Redirect(http.StatusSeeOther, "/job/"+id)
}
