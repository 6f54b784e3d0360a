package handlers

import (
	"net/http"
	"time"

	"vslice/internal/version"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Routes bundles the handlers served by the web server
type Routes struct {
	Home     *HomeHandler
	Upload   *UploadHandler
	Job      *JobHandler
	Progress *ProgressHandler
	Download *DownloadHandler
	Metrics  http.Handler

	// MaxUploadSize limits POST /start bodies, e.g. "4G". Empty means unlimited.
	MaxUploadSize string
	// UploadRate is uploads per second per client IP; 0 disables limiting.
	UploadRate  float64
	UploadBurst int
}

// Register mounts every route on e
func (r *Routes) Register(e *echo.Echo) {
	e.GET("/", r.Home.Show)
	e.POST("/start", r.Upload.Start, r.uploadMiddleware()...)
	e.GET("/job/:id", r.Job.Page)
	e.POST("/job/:id/cancel", r.Job.Cancel)
	e.GET("/progress/:id", r.Progress.Stream)
	e.GET("/download/:id", r.Download.File)
	e.GET("/download_all/:id", r.Download.All)

	api := e.Group("/api")
	api.GET("/jobs", r.Job.List)
	api.GET("/jobs/stats", r.Job.Stats)
	api.GET("/jobs/:id", r.Job.Get)
	api.DELETE("/jobs/:id", r.Job.Delete)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}
}

func (r *Routes) uploadMiddleware() []echo.MiddlewareFunc {
	var mw []echo.MiddlewareFunc
	if r.MaxUploadSize != "" {
		mw = append(mw, middleware.BodyLimit(r.MaxUploadSize))
	}
	if r.UploadRate > 0 {
		burst := r.UploadBurst
		if burst < 1 {
			burst = 1
		}
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(r.UploadRate),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		})
		mw = append(mw, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: store,
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many uploads, slow down"})
			},
		}))
	}
	return mw
}
