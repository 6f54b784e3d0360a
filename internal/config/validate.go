package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	} else if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required (use :memory: for process-lifetime history)"))
	}
	if c.FFmpegBin == "" || c.FFprobeBin == "" {
		errs = append(errs, errors.New("ffmpeg_bin and ffprobe_bin are required"))
	}

	if c.MinSegmentSeconds <= 0 {
		errs = append(errs, fmt.Errorf("min_segment_seconds must be positive, got %v", c.MinSegmentSeconds))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.KeepAlive <= 0 {
		errs = append(errs, fmt.Errorf("keep_alive must be positive, got %v", c.KeepAlive))
	}

	if c.UploadRate < 0 {
		errs = append(errs, fmt.Errorf("upload_rate cannot be negative, got %v", c.UploadRate))
	}
	if c.UploadRate > 0 && c.UploadBurst <= 0 {
		errs = append(errs, fmt.Errorf("upload_burst must be positive when upload_rate is set, got %d", c.UploadBurst))
	}
	if c.RecentJobs <= 0 {
		errs = append(errs, fmt.Errorf("recent_jobs must be positive, got %d", c.RecentJobs))
	}

	if c.Retention < 0 {
		errs = append(errs, fmt.Errorf("retention cannot be negative, got %v", c.Retention))
	}
	if c.Retention > 0 && c.JanitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("janitor_interval must be positive when retention is set, got %v", c.JanitorInterval))
	}

	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.endpoint is set but s3.bucket is empty"))
	}

	return errors.Join(errs...)
}
