package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

var _ repository.GroupJobRepository = (*groupJobRepo)(nil)

type groupJobRepo struct{ pool *pgxpool.Pool }

func NewGroupJobRepo(pool *pgxpool.Pool) *groupJobRepo {
	return &groupJobRepo{pool: pool}
}

func (r *groupJobRepo) Save(ctx context.Context, j *model.GroupJob) error {
	const q = `
INSERT INTO group_jobs (id, kind, telegram_id, due_at, created_at, done_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET due_at=$4, done_at=$6;`

	_, err := r.pool.Exec(ctx, q, j.ID, j.Kind, j.TelegramID, j.DueAt, j.CreatedAt, j.DoneAt)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *groupJobRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.GroupJob, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, kind, telegram_id, due_at, created_at, done_at FROM group_jobs
WHERE done_at IS NULL AND due_at <= $1
ORDER BY due_at ASC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.GroupJob
	for rows.Next() {
		j := &model.GroupJob{}
		if err := rows.Scan(&j.ID, &j.Kind, &j.TelegramID, &j.DueAt, &j.CreatedAt, &j.DoneAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *groupJobRepo) MarkDone(ctx context.Context, id string) error {
	const q = `UPDATE group_jobs SET done_at=NOW() WHERE id=$1 AND done_at IS NULL;`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
