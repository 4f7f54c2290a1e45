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

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) Save(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, telegram_id, username, phone_number, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  username=$3, phone_number=$4, updated_at=$6;`

	_, err := r.pool.Exec(ctx, q, a.ID, a.TelegramID, a.Username, a.PhoneNumber, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accountRepo) FindByTelegramID(ctx context.Context, tgID int64) (*model.Account, error) {
	const q = `SELECT id, telegram_id, username, phone_number, created_at, updated_at FROM accounts WHERE telegram_id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, tgID))
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	const q = `SELECT id, telegram_id, username, phone_number, created_at, updated_at FROM accounts WHERE id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *accountRepo) scanOne(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	if err := row.Scan(&a.ID, &a.TelegramID, &a.Username, &a.PhoneNumber, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *accountRepo) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts;`).Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
