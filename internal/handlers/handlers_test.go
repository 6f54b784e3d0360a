package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vslice/internal/delivery"
	"vslice/internal/ingestion"
	"vslice/internal/jobs"
	"vslice/internal/metrics"
	"vslice/internal/models"
	"vslice/internal/probe"
	"vslice/internal/storage"
	"vslice/internal/workspace"

	"github.com/labstack/echo/v4"
)

type stubProber struct {
	result *probe.Result
	err    error
}

func (p *stubProber) Probe(ctx context.Context, path string) (*probe.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

type stubRunner struct {
	started   []string
	cancelled []string
	cancelErr error
}

func (s *stubRunner) Start(id string) error {
	s.started = append(s.started, id)
	return nil
}

func (s *stubRunner) Cancel(id string) error {
	s.cancelled = append(s.cancelled, id)
	return s.cancelErr
}

type testEnv struct {
	e        *echo.Echo
	registry *jobs.Registry
	repo     *storage.JobRepository
	prober   *stubProber
	runner   *stubRunner
	routes   *Routes
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.Open(storage.MemoryPath)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := storage.NewJobRepository(db)

	registry := jobs.NewRegistry()
	registry.Observe(func(job models.Job) {
		if err := repo.Save(context.Background(), job); err != nil {
			t.Errorf("Save: %v", err)
		}
	})

	prober := &stubProber{result: &probe.Result{Duration: 1000, Bitrate: 80_000_000}}
	runner := &stubRunner{}
	ws := workspace.New(t.TempDir())
	ingester := ingestion.NewVideoIngester(registry, runner, prober, ws, 1)

	routes := &Routes{
		Home:     NewHomeHandler(registry, 5, "4G"),
		Upload:   NewUploadHandler(ingester),
		Job:      NewJobHandler(registry, runner, repo),
		Progress: NewProgressHandler(jobs.NewNotifier(registry, 10*time.Millisecond), time.Second),
		Download: NewDownloadHandler(delivery.New(registry)),
		Metrics:  metrics.New().Handler(),
	}
	e := echo.New()
	routes.Register(e)

	return &testEnv{e: e, registry: registry, repo: repo, prober: prober, runner: runner, routes: routes}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, chunk, pattern string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("fake video bytes"))
	}
	mw.WriteField("chunk_mb", chunk)
	if pattern != "" {
		mw.WriteField("pattern", pattern)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/start", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return req
}

// addJob registers a job and walks it through the given statuses.
func (env *testEnv) addJob(t *testing.T, dir string, outputs []string, statuses ...string) models.Job {
	t.Helper()
	job, _ := env.registry.Create(models.Job{SourceName: "clip.mp4", OutputDir: dir, Pattern: "part%03d.mp4"})
	for _, status := range statuses {
		var err error
		job, err = env.registry.Update(job.ID, func(j *models.Job) error {
			j.Status = status
			if status == models.JobStatusCompleted {
				j.Outputs = outputs
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	return job
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t)
	env.addJob(t, t.TempDir(), nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/start"`) || !strings.Contains(rec.Body.String(), "clip.mp4") {
		t.Error("home page missing form or recent job")
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %s", ct)
	}
}

func TestStartJSON(t *testing.T) {
	env := newTestEnv(t)

	req := uploadRequest(t, "talk.mp4", "500", "")
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := env.do(req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	job, err := env.registry.Get(resp["job_id"])
	if err != nil {
		t.Fatalf("job not registered: %v", err)
	}
	if job.SegmentSeconds != 50 || resp["message"] != "~20 parts @ 50.00s/part" {
		t.Errorf("plan = %v, message %q", job.SegmentSeconds, resp["message"])
	}
	if len(env.runner.started) != 1 || env.runner.started[0] != job.ID {
		t.Errorf("runner started %v", env.runner.started)
	}
}

func TestStartBrowserRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "talk.mp4", "10", "scene_%02d"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	loc := rec.Header().Get(echo.HeaderLocation)
	if !strings.HasPrefix(loc, "/job/") {
		t.Fatalf("Location = %q", loc)
	}
	job, err := env.registry.Get(strings.TrimPrefix(loc, "/job/"))
	if err != nil {
		t.Fatal(err)
	}
	if job.Pattern != "scene_%02d.mp4" {
		t.Errorf("pattern = %s", job.Pattern)
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		chunk    string
		pattern  string
		probeErr error
		want     int
	}{
		{"missing file", "", "10", "", nil, http.StatusBadRequest},
		{"chunk not a number", "a.mp4", "ten", "", nil, http.StatusBadRequest},
		{"negative chunk", "a.mp4", "-1", "", nil, http.StatusBadRequest},
		{"bad pattern", "a.mp4", "10", "../x%d.mp4", nil, http.StatusBadRequest},
		{"unreadable video", "a.mp4", "10", "", &probe.ProbeError{Path: "/srv/uploads/a.mp4", Err: errors.New("moov atom not found")}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.prober.err = tt.probeErr

			req := uploadRequest(t, tt.filename, tt.chunk, tt.pattern)
			req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
			rec := env.do(req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if env.registry.Len() != 0 || len(env.runner.started) != 0 {
				t.Error("job created for rejected upload")
			}
			if strings.Contains(rec.Body.String(), "/srv/uploads") {
				t.Error("error leaks server path")
			}
		})
	}
}

func TestStartRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.routes.UploadRate = 0.001
	env.routes.UploadBurst = 1
	env.e = echo.New()
	env.routes.Register(env.e)

	first := env.do(uploadRequest(t, "a.mp4", "10", ""))
	if first.Code != http.StatusSeeOther {
		t.Fatalf("first upload status = %d", first.Code)
	}
	second := env.do(uploadRequest(t, "a.mp4", "10", ""))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second upload status = %d, want 429", second.Code)
	}
}

func TestJobPage(t *testing.T) {
	env := newTestEnv(t)
	job := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/job/"+job.ID, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), job.ID) {
		t.Errorf("status = %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/job/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	job := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/job/"+job.ID+"/cancel", nil))
	if rec.Code != http.StatusSeeOther || len(env.runner.cancelled) != 1 {
		t.Errorf("cancel status = %d, cancelled %v", rec.Code, env.runner.cancelled)
	}

	env.runner.cancelErr = jobs.ErrNotRunning
	rec = env.do(httptest.NewRequest(http.MethodPost, "/job/"+job.ID+"/cancel", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel of idle job status = %d, want 409", rec.Code)
	}
}

func TestDownloadAll(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "part000.mp4"), []byte("aaa"), 0644)
	os.WriteFile(filepath.Join(dir, "part001.mp4"), []byte("bbb"), 0644)

	running := env.addJob(t, dir, nil, models.JobStatusRunning)
	done := env.addJob(t, dir, []string{"part000.mp4", "part001.mp4"}, models.JobStatusRunning, models.JobStatusCompleted)
	empty := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning, models.JobStatusCompleted)

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"running", running.ID, http.StatusConflict},
		{"empty", empty.ID, http.StatusNotFound},
		{"unknown", "nope", http.StatusNotFound},
		{"completed", done.ID, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/download_all/"+tt.id, nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, done.ID+"_parts.zip") {
				t.Errorf("Content-Disposition = %q", cd)
			}
			zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
			if err != nil {
				t.Fatalf("invalid zip: %v", err)
			}
			if len(zr.File) != 2 || zr.File[1].Name != "part001.mp4" {
				t.Errorf("zip entries = %v", zr.File)
			}
		})
	}
}

func TestDownloadFile(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "part000.mp4"), []byte("part zero"), 0644)
	os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("nope"), 0644)
	job := env.addJob(t, dir, []string{"part000.mp4"}, models.JobStatusRunning, models.JobStatusCompleted)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+job.ID+"?f=part000.mp4", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "part zero" {
		t.Errorf("download status = %d body %q", rec.Code, rec.Body)
	}

	running := env.addJob(t, dir, nil, models.JobStatusRunning)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/download/"+running.ID+"?f=part000.mp4", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("download from running job status = %d, want 404", rec.Code)
	}

	for _, name := range []string{"secret.txt", "..%2Fsecret.txt", ""} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/download/"+job.ID+"?f="+name, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("f=%q status = %d, want 404", name, rec.Code)
		}
	}
}

func TestProgressStream(t *testing.T) {
	env := newTestEnv(t)
	job := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning)

	go func() {
		time.Sleep(20 * time.Millisecond)
		env.registry.Update(job.ID, func(j *models.Job) error {
			j.Progress = 40
			return nil
		})
		time.Sleep(20 * time.Millisecond)
		env.registry.Update(job.ID, func(j *models.Job) error {
			j.Status = models.JobStatusCompleted
			j.Outputs = []string{"part000.mp4"}
			return nil
		})
	}()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/progress/"+job.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Errorf("content type = %s", ct)
	}

	var events []jobs.Event
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev jobs.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event %q: %v", data, err)
		}
		events = append(events, ev)
	}
	if len(events) < 2 {
		t.Fatalf("events = %+v", events)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("percent decreased: %+v", events)
		}
	}
	last := events[len(events)-1]
	if !last.Terminal || last.Status != models.JobStatusCompleted || last.Files[0] != "part000.mp4" {
		t.Errorf("last event = %+v", last)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/progress/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d", rec.Code)
	}
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t)
	done := env.addJob(t, t.TempDir(), []string{}, models.JobStatusRunning, models.JobStatusCompleted)
	env.addJob(t, t.TempDir(), nil, models.JobStatusRunning, models.JobStatusFailed)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil))
	var list []models.Job
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list) != 1 || list[0].ID != done.ID {
		t.Errorf("list = %d %+v", rec.Code, list)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	var stats map[string]int64
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats[models.JobStatusCompleted] != 1 || stats[models.JobStatusFailed] != 1 {
		t.Errorf("stats = %v", stats)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+done.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	// Pruned from the live registry, still served from history.
	env.registry.Remove(done.ID)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+done.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("archived get status = %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d", rec.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	env := newTestEnv(t)
	done := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning, models.JobStatusCompleted)
	running := env.addJob(t, t.TempDir(), nil, models.JobStatusRunning)

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"running job is kept", running.ID, http.StatusConflict},
		{"finished job", done.ID, http.StatusNoContent},
		{"already deleted", done.ID, http.StatusNotFound},
		{"unknown", "nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/jobs/"+tt.id, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	if archived, _ := env.repo.GetByID(context.Background(), done.ID); archived != nil {
		t.Error("history record still present")
	}
	if archived, _ := env.repo.GetByID(context.Background(), running.ID); archived == nil {
		t.Error("running job removed from history")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "vslice_jobs_running") {
		t.Errorf("metrics = %d", rec.Code)
	}
}
