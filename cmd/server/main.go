package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vslice/internal/config"
	"vslice/internal/delivery"
	"vslice/internal/handlers"
	"vslice/internal/ingestion"
	"vslice/internal/jobs"
	"vslice/internal/metrics"
	"vslice/internal/models"
	"vslice/internal/probe"
	"vslice/internal/publish"
	"vslice/internal/storage"
	"vslice/internal/version"
	"vslice/internal/worker"
	"vslice/internal/workspace"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search standard locations)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// データベースの初期化（ジョブ履歴）
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := storage.NewJobRepository(db)

	m := metrics.New()

	registry := jobs.NewRegistry()
	registry.Observe(func(job models.Job) {
		if err := repo.Save(context.Background(), job); err != nil {
			log.Printf("Failed to record job %s: %v", job.ID, err)
		}
	})
	registry.Observe(m.ObserveJob)

	var runnerOpts []jobs.RunnerOption
	if cfg.S3.Enabled() {
		publisher, err := publish.NewFromConfig(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to configure S3 mirror: %v", err)
		}
		runnerOpts = append(runnerOpts, jobs.WithPublisher(publisher))
		log.Printf("Mirroring parts to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}
	runner := jobs.NewRunner(registry, cfg.FFmpegBin, runnerOpts...)

	ws := workspace.New(cfg.DataDir)
	ingester := ingestion.NewVideoIngester(registry, runner, probe.New(cfg.FFprobeBin), ws, cfg.MinSegmentSeconds)
	ingester.OnUpload(m.AddUpload)

	janitor := worker.NewJanitor(registry, ws, cfg.Retention)
	janitor.SetInterval(cfg.JanitorInterval)
	janitor.Start(ctx)

	// Echoインスタンスの作成
	e := echo.New()
	e.HideBanner = true

	// ミドルウェアの設定
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// ルートの登録
	routes := &handlers.Routes{
		Home:          handlers.NewHomeHandler(registry, cfg.RecentJobs, cfg.MaxUploadSize),
		Upload:        handlers.NewUploadHandler(ingester),
		Job:           handlers.NewJobHandler(registry, runner, repo),
		Progress:      handlers.NewProgressHandler(jobs.NewNotifier(registry, cfg.PollInterval), cfg.KeepAlive),
		Download:      handlers.NewDownloadHandler(delivery.New(registry)),
		Metrics:       m.Handler(),
		MaxUploadSize: cfg.MaxUploadSize,
		UploadRate:    cfg.UploadRate,
		UploadBurst:   cfg.UploadBurst,
	}
	routes.Register(e)

	// サーバー起動
	go func() {
		log.Printf("Starting vslice v%s on port %s", version.Version, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Printf("Runner shutdown: %v", err)
	}
	janitor.Stop()
}
