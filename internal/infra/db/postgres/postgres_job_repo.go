package postgres

import (
	"context"
	"errors"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, name, status, progress, timeout_ms, is_stop_allowed, error, error_code, chat_id, message_id, mj_native_message_id, created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	err := row.Scan(&j.ID, &j.Name, &status, &j.Progress, &j.TimeoutMs, &j.IsStopAllowed,
		&j.Error, &j.ErrorCode, &j.ChatID, &j.MessageID, &j.MJNativeMessageID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  timeout_ms = EXCLUDED.timeout_ms,
  is_stop_allowed = EXCLUDED.is_stop_allowed,
  error = EXCLUDED.error,
  error_code = EXCLUDED.error_code,
  mj_native_message_id = EXCLUDED.mj_native_message_id,
  updated_at = EXCLUDED.updated_at;`

	_, err = ex.Exec(ctx, q,
		job.ID, job.Name, string(job.Status), job.Progress, job.TimeoutMs, job.IsStopAllowed,
		job.Error, job.ErrorCode, job.ChatID, job.MessageID, job.MJNativeMessageID, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return scanJob(ex.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id))
}

func (r *jobRepo) Patch(ctx context.Context, tx repository.Tx, id string, p repository.JobPatch) (*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE jobs SET
  name = COALESCE($2, name),
  timeout_ms = COALESCE($3, timeout_ms),
  mj_native_message_id = COALESCE($4, mj_native_message_id),
  updated_at = NOW()
WHERE id = $1
RETURNING ` + jobColumns + `;`
	return scanJob(ex.QueryRow(ctx, q, id, p.Name, p.TimeoutMs, p.MJNativeMessageID))
}

func (r *jobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) ListUnfinished(ctx context.Context, tx repository.Tx) ([]*model.Job, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status IN ('created', 'pending') ORDER BY created_at;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
