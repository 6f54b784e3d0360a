package config

import "time"

// Config holds all server and splitter settings
type Config struct {
	// HTTP
	Port          string  `yaml:"port"`
	MaxUploadSize string  `yaml:"max_upload_size"` // echo BodyLimit syntax, e.g. "4G"
	UploadRate    float64 `yaml:"upload_rate"`     // uploads per second per client, 0 = unlimited
	UploadBurst   int     `yaml:"upload_burst"`
	RecentJobs    int     `yaml:"recent_jobs"` // jobs shown on the home page

	// Filesystem
	DataDir string `yaml:"data_dir"` // uploads/<id> and outputs/<id> live under here
	DBPath  string `yaml:"db_path"`  // ":memory:" keeps history for the process lifetime only

	// External tools
	FFmpegBin  string `yaml:"ffmpeg_bin"`
	FFprobeBin string `yaml:"ffprobe_bin"`

	// Planning and progress
	MinSegmentSeconds float64       `yaml:"min_segment_seconds"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	KeepAlive         time.Duration `yaml:"keep_alive"`

	// Janitor
	Retention       time.Duration `yaml:"retention"` // 0 disables pruning
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	// Optional object mirror
	S3 S3Config `yaml:"s3"`
}

// S3Config configures the optional mirror of finished parts.
type S3Config struct {
	Bucket   string `yaml:"bucket"` // empty disables the mirror
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // custom endpoint (MinIO etc.), enables path-style addressing
}

// Enabled reports whether a bucket is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:          "8080",
		MaxUploadSize: "4G",
		UploadRate:    1,
		UploadBurst:   5,
		RecentJobs:    5,

		DataDir: "./data",
		DBPath:  ":memory:",

		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",

		MinSegmentSeconds: 1,
		PollInterval:      500 * time.Millisecond,
		KeepAlive:         15 * time.Second,

		Retention:       24 * time.Hour,
		JanitorInterval: 10 * time.Minute,

		S3: S3Config{
			Prefix: "vslice",
		},
	}
}
