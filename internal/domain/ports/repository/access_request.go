package repository

import (
	"context"

	"telegram-subscription-bot/internal/domain/model"
)

// -----------------------------
// Access requests (manual-approval path)
// -----------------------------

type AccessRequestRepository interface {
	// Save upserts by ID. A second pending request for the same telegram id
	// fails with domain.ErrDuplicateReference (unique partial index).
	Save(ctx context.Context, r *model.AccessRequest) error
	FindByID(ctx context.Context, id string) (*model.AccessRequest, error)
	FindPendingByTelegramID(ctx context.Context, tgID int64) (*model.AccessRequest, error)
	ListPending(ctx context.Context) ([]*model.AccessRequest, error)
}
