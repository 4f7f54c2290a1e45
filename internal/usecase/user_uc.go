package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

// UserUseCase resolves Telegram identities to ledger accounts.
type UserUseCase struct {
	accounts repository.AccountRepository
	log      zerolog.Logger
}

func NewUserUseCase(accounts repository.AccountRepository, log *zerolog.Logger) *UserUseCase {
	return &UserUseCase{
		accounts: accounts,
		log:      log.With().Str("component", "user_uc").Logger(),
	}
}

// CountAccounts returns the total number of ledger accounts.
func (uc *UserUseCase) CountAccounts(ctx context.Context) (int, error) {
	return uc.accounts.CountAccounts(ctx)
}

// RegisterOrFetch returns the account for the Telegram identity, creating it
// on first contact. Username and phone are refreshed on every call; a
// resubmitted phone number overwrites the stored one.
func (uc *UserUseCase) RegisterOrFetch(ctx context.Context, tgID int64, username, phone string) (*model.Account, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		acct, err = model.NewAccount("", tgID, username, phone)
		if err != nil {
			return nil, err
		}
		if err := uc.accounts.Save(ctx, acct); err != nil {
			return nil, err
		}
		uc.log.Info().Int64("telegram_id", tgID).Msg("account created")
		return acct, nil
	}

	changed := false
	if username != "" && username != acct.Username {
		acct.Username = username
		changed = true
	}
	if phone != "" && model.ValidPhoneNumber(phone) {
		if normalized := model.NormalizePhoneNumber(phone); normalized != acct.PhoneNumber {
			acct.PhoneNumber = normalized
			changed = true
		}
	}
	if changed {
		if err := uc.accounts.Save(ctx, acct); err != nil {
			return nil, err
		}
	}
	return acct, nil
}
