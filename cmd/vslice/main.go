package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"vslice/internal/config"
	"vslice/internal/ffmpeg"
	"vslice/internal/jobs"
	"vslice/internal/models"
	"vslice/internal/plan"
	"vslice/internal/probe"
)

func main() {
	// Define flags
	var (
		inputFile  = flag.String("i", "", "Input video file")
		chunkMB    = flag.Float64("chunk", 0, "Target part size in MB (1 MB = 1,000,000 bytes)")
		output     = flag.String("o", "", "Output pattern (default: <input>_part%03d<ext> next to the input)")
		ffmpegBin  = flag.String("ffmpeg", "", "ffmpeg binary (default from config)")
		ffprobeBin = flag.String("ffprobe", "", "ffprobe binary (default from config)")
		dryRun     = flag.Bool("dry-run", false, "Print the ffmpeg command without running it")
		configPath = flag.String("config", "", "Config file path")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -i <file> -chunk <MB> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -i talk.mp4 -chunk 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i talk.mp4 -chunk 25 -o out/scene_%%02d.mp4\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i talk.mp4 -chunk 100 -dry-run\n", os.Args[0])
	}

	flag.Parse()

	// Validate input
	if *inputFile == "" || *chunkMB <= 0 {
		fmt.Fprintf(os.Stderr, "Error: -i and a positive -chunk are required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: Input file not found: %s\n", *inputFile)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *ffmpegBin != "" {
		cfg.FFmpegBin = *ffmpegBin
	}
	if *ffprobeBin != "" {
		cfg.FFprobeBin = *ffprobeBin
	}

	outDir, pattern, err := outputPattern(*inputFile, *output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := probe.New(cfg.FFprobeBin).Probe(ctx, *inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	segment, err := plan.SegmentSeconds(plan.Input{
		ChunkMB:  *chunkMB,
		Duration: info.Duration,
		Bitrate:  info.Bitrate,
		Size:     info.Size,
	}, cfg.MinSegmentSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s (duration %.1fs)\n", plan.Describe(info.Duration, segment), info.Duration)

	if *dryRun {
		cmd := ffmpeg.SegmentCommand{
			Input:          *inputFile,
			OutputDir:      outDir,
			Pattern:        pattern,
			SegmentSeconds: segment,
		}
		fmt.Println(cmd.DryRun(cfg.FFmpegBin))
		return
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	job, err := split(ctx, cfg, models.Job{
		SourcePath:     *inputFile,
		SourceName:     filepath.Base(*inputFile),
		OutputDir:      outDir,
		Pattern:        pattern,
		ChunkMB:        *chunkMB,
		Duration:       info.Duration,
		Bitrate:        info.Bitrate,
		Size:           info.Size,
		SegmentSeconds: segment,
		EstimatedParts: plan.EstimateParts(info.Duration, segment),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if job.Status != models.JobStatusCompleted {
		fmt.Fprintf(os.Stderr, "Error: %s\n", job.Error)
		os.Exit(1)
	}
	for _, name := range job.Outputs {
		fmt.Println(filepath.Join(outDir, name))
	}
}

// split runs job through a Runner and prints progress until it finishes.
func split(ctx context.Context, cfg *config.Config, job models.Job) (models.Job, error) {
	registry := jobs.NewRegistry()
	runner := jobs.NewRunner(registry, cfg.FFmpegBin)
	notifier := jobs.NewNotifier(registry, cfg.PollInterval)

	job, err := registry.Create(job)
	if err != nil {
		return job, err
	}
	events, err := notifier.Subscribe(context.Background(), job.ID)
	if err != nil {
		return job, err
	}
	if err := runner.Start(job.ID); err != nil {
		return job, err
	}

	go func() {
		<-ctx.Done()
		runner.Cancel(job.ID)
	}()

	for ev := range events {
		if ev.Indeterminate {
			fmt.Fprintf(os.Stderr, "\r  ...    %-40s", ev.Message)
		} else {
			fmt.Fprintf(os.Stderr, "\r%6.1f%%  %-40s", ev.Percent, ev.Message)
		}
	}
	fmt.Fprintln(os.Stderr)

	runner.Wait(job.ID)
	return registry.Get(job.ID)
}

// outputPattern splits -o into a directory and a file name pattern.
func outputPattern(input, output string) (string, string, error) {
	ext := filepath.Ext(input)
	if output == "" {
		base := strings.TrimSuffix(filepath.Base(input), ext)
		return filepath.Dir(input), ffmpeg.EnsureExtension(base+"_part%03d", ext), nil
	}

	dir, pattern := filepath.Split(output)
	if dir == "" {
		dir = "."
	}
	if err := ffmpeg.ValidatePattern(pattern); err != nil {
		return "", "", err
	}
	return filepath.Clean(dir), ffmpeg.EnsureExtension(pattern, ext), nil
}
