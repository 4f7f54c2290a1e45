package repository

import (
	"context"
	"time"

	"telegram-subscription-bot/internal/domain/model"
)

// -----------------------------
// Payment transactions
// -----------------------------

type TransactionRepository interface {
	// Save upserts by ID. Inserting a second transaction with the same
	// checkout request id fails with domain.ErrDuplicateReference.
	Save(ctx context.Context, t *model.Transaction) error
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*model.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]*model.Transaction, error)

	// ListPendingCreatedBetween returns pending transactions created in
	// [from, to), oldest first. Used by the reconciliation window scan.
	ListPendingCreatedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.Transaction, error)

	// ListPendingOlderThan returns pending transactions created before the
	// cutoff, oldest first. Used by the stale-pending cleanup.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Transaction, error)
}
