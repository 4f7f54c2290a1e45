package repository

import (
	"context"

	"telegram-subscription-bot/internal/domain/model"
)

// -----------------------------
// Accounts
// -----------------------------

type AccountRepository interface {
	Save(ctx context.Context, a *model.Account) error
	FindByTelegramID(ctx context.Context, tgID int64) (*model.Account, error)
	FindByID(ctx context.Context, id string) (*model.Account, error)
	CountAccounts(ctx context.Context) (int, error)
}
