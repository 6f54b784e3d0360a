package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vslice/internal/models"
)

const jobColumns = `id, source_name, pattern, chunk_mb, duration, bitrate, size,
	segment_seconds, estimated_parts, status, progress, message, error,
	outputs, remote, version, created_at, started_at, completed_at`

// 古いスナップショットで新しい行を上書きしない
const upsertJob = `INSERT INTO slice_jobs (` + jobColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	progress = excluded.progress,
	message = excluded.message,
	error = excluded.error,
	outputs = excluded.outputs,
	remote = excluded.remote,
	version = excluded.version,
	started_at = excluded.started_at,
	completed_at = excluded.completed_at
WHERE excluded.version >= slice_jobs.version`

// JobRepository はジョブ履歴のデータアクセス層
type JobRepository struct {
	db *DB
}

// NewJobRepository は新しいJobRepositoryを作成
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save はジョブのスナップショットを保存（存在すれば更新）
func (r *JobRepository) Save(ctx context.Context, job models.Job) error {
	outputs, err := encodeList(job.Outputs)
	if err != nil {
		return err
	}
	remote, err := encodeList(job.Remote)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, upsertJob,
		job.ID, job.SourceName, job.Pattern, job.ChunkMB, job.Duration,
		job.Bitrate, job.Size, job.SegmentSeconds, job.EstimatedParts,
		job.Status, job.Progress, nullString(job.Message), nullString(job.Error),
		outputs, remote, int64(job.Version), job.CreatedAt.UTC(),
		nullTime(job.StartedAt), nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID はIDでジョブを取得
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM slice_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListRecent は最近のジョブ一覧を取得
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]models.Job, error) {
	if limit == 0 {
		limit = 50
	}
	return r.query(ctx, `SELECT `+jobColumns+` FROM slice_jobs
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// ListByStatus はステータスでジョブ一覧を取得
func (r *JobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if limit == 0 {
		limit = 50
	}
	return r.query(ctx, `SELECT `+jobColumns+` FROM slice_jobs
		WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, status, limit)
}

// CountByStatus はステータスごとのジョブ数を取得
func (r *JobRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM slice_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Delete はジョブを削除
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM slice_jobs WHERE id = ?`, id)
	return err
}

func (r *JobRepository) query(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.Job, error) {
	var (
		job                    models.Job
		message, errMsg        sql.NullString
		outputs, remote        string
		version                int64
		startedAt, completedAt sql.NullTime
	)
	err := s.Scan(
		&job.ID, &job.SourceName, &job.Pattern, &job.ChunkMB, &job.Duration,
		&job.Bitrate, &job.Size, &job.SegmentSeconds, &job.EstimatedParts,
		&job.Status, &job.Progress, &message, &errMsg,
		&outputs, &remote, &version, &job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Message = message.String
	job.Error = errMsg.String
	job.Version = uint64(version)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(outputs), &job.Outputs); err != nil {
		return nil, fmt.Errorf("failed to decode outputs of %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(remote), &job.Remote); err != nil {
		return nil, fmt.Errorf("failed to decode remote keys of %s: %w", job.ID, err)
	}
	return &job, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
