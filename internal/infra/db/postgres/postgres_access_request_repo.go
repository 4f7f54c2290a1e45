package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

var _ repository.AccessRequestRepository = (*accessRequestRepo)(nil)

type accessRequestRepo struct{ pool *pgxpool.Pool }

func NewAccessRequestRepo(pool *pgxpool.Pool) *accessRequestRepo {
	return &accessRequestRepo{pool: pool}
}

const reqCols = `id, account_id, telegram_id, username, phone_number, tier, status, requested_at, processed_at, processed_by, notes`

func (r *accessRequestRepo) Save(ctx context.Context, req *model.AccessRequest) error {
	// The partial unique index on (telegram_id) WHERE status='pending' makes
	// a concurrent second submission fail here instead of racing.
	const q = `
INSERT INTO access_requests (id, account_id, telegram_id, username, phone_number, tier, status, requested_at, processed_at, processed_by, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status=$7, processed_at=$9, processed_by=$10, notes=$11;`

	_, err := r.pool.Exec(ctx, q,
		req.ID, req.AccountID, req.TelegramID, req.Username, req.PhoneNumber,
		req.Tier, req.Status, req.RequestedAt, req.ProcessedAt, req.ProcessedBy, req.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accessRequestRepo) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	const q = `SELECT ` + reqCols + ` FROM access_requests WHERE id=$1;`
	return scanAccessRequest(r.pool.QueryRow(ctx, q, id))
}

func (r *accessRequestRepo) FindPendingByTelegramID(ctx context.Context, tgID int64) (*model.AccessRequest, error) {
	const q = `SELECT ` + reqCols + ` FROM access_requests WHERE telegram_id=$1 AND status='pending' LIMIT 1;`
	return scanAccessRequest(r.pool.QueryRow(ctx, q, tgID))
}

func (r *accessRequestRepo) ListPending(ctx context.Context) ([]*model.AccessRequest, error) {
	const q = `SELECT ` + reqCols + ` FROM access_requests WHERE status='pending' ORDER BY requested_at ASC;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.AccessRequest
	for rows.Next() {
		req := &model.AccessRequest{}
		err := rows.Scan(&req.ID, &req.AccountID, &req.TelegramID, &req.Username, &req.PhoneNumber,
			&req.Tier, &req.Status, &req.RequestedAt, &req.ProcessedAt, &req.ProcessedBy, &req.Notes)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, req)
	}
	return out, nil
}

func scanAccessRequest(row pgx.Row) (*model.AccessRequest, error) {
	req := &model.AccessRequest{}
	err := row.Scan(&req.ID, &req.AccountID, &req.TelegramID, &req.Username, &req.PhoneNumber,
		&req.Tier, &req.Status, &req.RequestedAt, &req.ProcessedAt, &req.ProcessedBy, &req.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return req, nil
}
