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

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txCols = `id, account_id, checkout_request_id, merchant_request_id, receipt_number, phone_number, amount, status, tier, created_at, completed_at, updated_at`

// Save upserts by ID. The update arm only fires while the stored row is
// still pending: status transitions are monotone, so a terminal row is
// immutable and a stale save against it is a silent no-op.
func (r *transactionRepo) Save(ctx context.Context, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (id, account_id, checkout_request_id, merchant_request_id, receipt_number, phone_number, amount, status, tier, created_at, completed_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  merchant_request_id=$4, receipt_number=$5, status=$8, completed_at=$11, updated_at=$12
WHERE transactions.status='pending';`

	_, err := r.pool.Exec(ctx, q,
		t.ID, t.AccountID, t.CheckoutRequestID, t.MerchantRequestID, t.ReceiptNumber,
		t.PhoneNumber, t.Amount, t.Status, t.Tier, t.CreatedAt, t.CompletedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*model.Transaction, error) {
	const q = `SELECT ` + txCols + ` FROM transactions WHERE checkout_request_id=$1;`
	t := &model.Transaction{}
	err := r.pool.QueryRow(ctx, q, checkoutRequestID).Scan(
		&t.ID, &t.AccountID, &t.CheckoutRequestID, &t.MerchantRequestID, &t.ReceiptNumber,
		&t.PhoneNumber, &t.Amount, &t.Status, &t.Tier, &t.CreatedAt, &t.CompletedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *transactionRepo) ListByAccount(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	const q = `SELECT ` + txCols + ` FROM transactions WHERE account_id=$1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *transactionRepo) ListPendingCreatedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txCols + ` FROM transactions
WHERE status='pending' AND created_at >= $1 AND created_at < $2
ORDER BY created_at ASC LIMIT $3;`
	rows, err := r.pool.Query(ctx, q, from, to, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txCols + ` FROM transactions
WHERE status='pending' AND created_at < $1
ORDER BY created_at ASC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.CheckoutRequestID, &t.MerchantRequestID, &t.ReceiptNumber,
			&t.PhoneNumber, &t.Amount, &t.Status, &t.Tier, &t.CreatedAt, &t.CompletedAt, &t.UpdatedAt)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}
