package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load builds the configuration with priority: environment > config file > defaults.
// An explicit path must exist; without one the standard locations are searched.
// A .env file in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	// .envファイルを読み込み（存在しない場合はスキップ）
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		fileCfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg = fileCfg
	}

	if err := cfg.MergeFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MergeFromEnv overrides fields with any environment variables that are set.
func (c *Config) MergeFromEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.MaxUploadSize, "MAX_UPLOAD_SIZE")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.FFmpegBin, "FFMPEG_BIN")
	setString(&c.FFprobeBin, "FFPROBE_BIN")
	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Prefix, "S3_PREFIX")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.Endpoint, "S3_ENDPOINT")

	if err := setFloat(&c.UploadRate, "UPLOAD_RATE"); err != nil {
		return err
	}
	if err := setFloat(&c.MinSegmentSeconds, "MIN_SEGMENT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&c.UploadBurst, "UPLOAD_BURST"); err != nil {
		return err
	}
	if err := setInt(&c.RecentJobs, "RECENT_JOBS"); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, "POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.KeepAlive, "KEEP_ALIVE"); err != nil {
		return err
	}
	if err := setDuration(&c.Retention, "RETENTION"); err != nil {
		return err
	}
	if err := setDuration(&c.JanitorInterval, "JANITOR_INTERVAL"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
