package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

// PaymentUseCase starts the payment leg: it pushes an STK prompt and records
// the pending transaction the reconciliation engine will later finalize.
type PaymentUseCase struct {
	gateway      adapter.PaymentGateway
	transactions repository.TransactionRepository
	users        *UserUseCase
	pricing      TierPricing
	log          zerolog.Logger
}

func NewPaymentUseCase(
	gateway adapter.PaymentGateway,
	transactions repository.TransactionRepository,
	users *UserUseCase,
	pricing TierPricing,
	log *zerolog.Logger,
) *PaymentUseCase {
	return &PaymentUseCase{
		gateway:      gateway,
		transactions: transactions,
		users:        users,
		pricing:      pricing,
		log:          log.With().Str("component", "payment_uc").Logger(),
	}
}

// Initiate validates the purchase, fires the STK push, and persists the
// pending transaction keyed by the provider's checkout request id. The
// returned message is user-facing for both accepted and rejected pushes.
func (uc *PaymentUseCase) Initiate(ctx context.Context, tgID int64, username, phone string, tier model.PackageTier) (*model.Transaction, string, error) {
	if !tier.Valid() {
		return nil, "Unknown package.", domain.ErrInvalidArgument
	}
	amount, ok := uc.pricing[tier]
	if !ok || amount <= 0 {
		return nil, "Unknown package.", fmt.Errorf("no price configured for tier %q: %w", tier, domain.ErrInvalidArgument)
	}
	if !model.ValidPhoneNumber(phone) {
		return nil, "That doesn't look like a valid Kenyan phone number. Try 07XXXXXXXX or 2547XXXXXXXX.", domain.ErrInvalidArgument
	}

	acct, err := uc.users.RegisterOrFetch(ctx, tgID, username, phone)
	if err != nil {
		return nil, "Something went wrong. Please try again.", err
	}

	ref := fmt.Sprintf("sub-%s", tier)
	res, err := uc.gateway.InitiatePayment(ctx, phone, amount, ref, fmt.Sprintf("%s subscription", tier))
	if err != nil {
		return nil, "Could not reach the payment provider. Please try again shortly.", err
	}
	if !res.Success {
		uc.log.Warn().
			Int64("telegram_id", tgID).
			Str("error_code", res.ErrorCode).
			Str("message", res.Message).
			Msg("payment initiation rejected")
		return nil, res.Message, nil
	}

	txn, err := model.NewTransaction(acct.ID, res.CheckoutRequestID, res.MerchantRequestID, phone, amount, tier)
	if err != nil {
		return nil, "Something went wrong. Please try again.", err
	}
	if err := uc.transactions.Save(ctx, txn); err != nil {
		return nil, "Something went wrong. Please try again.", err
	}
	metrics.IncTransaction(string(model.TransactionStatusPending))

	uc.log.Info().
		Int64("telegram_id", tgID).
		Str("checkout_request_id", txn.CheckoutRequestID).
		Str("tier", string(tier)).
		Float64("amount", amount).
		Msg("payment initiated")
	return txn, "Check your phone and enter your M-Pesa PIN to complete the payment.", nil
}
