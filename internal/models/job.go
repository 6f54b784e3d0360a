package models

import "time"

// Job は1回の分割リクエストとそのライフサイクル
type Job struct {
	ID         string `json:"id"`
	SourcePath string `json:"-"`
	SourceName string `json:"source_name"`
	OutputDir  string `json:"-"`
	Pattern    string `json:"pattern"`

	ChunkMB        float64 `json:"chunk_mb"`
	Duration       float64 `json:"duration"`
	Bitrate        int64   `json:"bitrate"`
	Size           int64   `json:"size"`
	SegmentSeconds float64 `json:"segment_seconds"`
	EstimatedParts int     `json:"estimated_parts"`

	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	Indeterminate bool    `json:"indeterminate"`
	Message       string  `json:"message,omitempty"`
	Error         string  `json:"error,omitempty"`

	Outputs []string `json:"outputs,omitempty"`
	Remote  []string `json:"remote,omitempty"`

	Version     uint64     `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ジョブステータス
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// IsTerminal はジョブが終了状態かどうかを返す
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

// IsTerminalStatus reports whether status is completed or failed.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Clone returns a deep copy safe to hand out of the registry lock.
func (j Job) Clone() Job {
	if j.Outputs != nil {
		j.Outputs = append([]string(nil), j.Outputs...)
	}
	if j.Remote != nil {
		j.Remote = append([]string(nil), j.Remote...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}

// Elapsed returns how long the job ran, or 0 if it never started.
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}
