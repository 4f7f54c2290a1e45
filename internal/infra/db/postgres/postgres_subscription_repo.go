package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subCols = `id, account_id, tier, start_date, end_date, status, payment_ref, amount, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, sub *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, account_id, tier, start_date, end_date, status, payment_ref, amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  tier=$3, start_date=$4, end_date=$5, status=$6, amount=$8, updated_at=$10;`

	_, err := r.pool.Exec(ctx, q,
		sub.ID, sub.AccountID, sub.Tier, sub.StartDate, sub.EndDate,
		sub.Status, sub.PaymentRef, sub.Amount, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE id=$1;`
	return scanSubscription(r.pool.QueryRow(ctx, q, id))
}

func (r *subscriptionRepo) FindActiveByAccount(ctx context.Context, accountID string) (*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions
WHERE account_id=$1 AND status='active' AND end_date > NOW()
ORDER BY end_date DESC LIMIT 1;`
	return scanSubscription(r.pool.QueryRow(ctx, q, accountID))
}

func (r *subscriptionRepo) FindLatestByAccount(ctx context.Context, accountID string) (*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions
WHERE account_id=$1 ORDER BY created_at DESC LIMIT 1;`
	return scanSubscription(r.pool.QueryRow(ctx, q, accountID))
}

func (r *subscriptionRepo) ListExpiringWithin(ctx context.Context, window time.Duration) ([]*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions
WHERE status='active' AND end_date > NOW() AND end_date <= NOW() + make_interval(secs => $1)
ORDER BY end_date ASC;`
	rows, err := r.pool.Query(ctx, q, window.Seconds())
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) ListOverdue(ctx context.Context) ([]*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions
WHERE status='active' AND end_date <= NOW()
ORDER BY end_date ASC;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) ExpirePastDue(ctx context.Context, accountID string) ([]*model.Subscription, error) {
	const q = `WITH healed AS (
  UPDATE subscriptions SET status='expired', updated_at=NOW()
  WHERE account_id=$1 AND status='active' AND end_date <= NOW()
  RETURNING ` + subCols + `
)
SELECT ` + subCols + ` FROM healed ORDER BY end_date DESC;`
	rows, err := r.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status model.SubscriptionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = n
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := row.Scan(&s.ID, &s.AccountID, &s.Tier, &s.StartDate, &s.EndDate,
		&s.Status, &s.PaymentRef, &s.Amount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for rows.Next() {
		s := &model.Subscription{}
		err := rows.Scan(&s.ID, &s.AccountID, &s.Tier, &s.StartDate, &s.EndDate,
			&s.Status, &s.PaymentRef, &s.Amount, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, nil
}
