package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

// Callback outcomes, used for metrics and response reasons.
const (
	OutcomeCompleted          = "completed"
	OutcomeDuplicate          = "duplicate"
	OutcomePaymentFailed      = "payment_failed"
	OutcomeReceiptMissing     = "receipt_missing"
	OutcomeUnknownTransaction = "unknown_transaction"
	OutcomeMalformed          = "malformed"
	OutcomeAccountMissing     = "account_missing"
)

const receiptItemName = "MpesaReceiptNumber"

// StkCallbackItem is one metadata entry in a provider notification.
type StkCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

type StkCallbackMetadata struct {
	Item []StkCallbackItem `json:"Item"`
}

// StkCallback is the inner callback object of the provider notification.
// ResultCode is a pointer so a missing or non-numeric code is detectable.
type StkCallback struct {
	MerchantRequestID string               `json:"MerchantRequestID"`
	CheckoutRequestID string               `json:"CheckoutRequestID"`
	ResultCode        *int                 `json:"ResultCode"`
	ResultDesc        string               `json:"ResultDesc"`
	CallbackMetadata  *StkCallbackMetadata `json:"CallbackMetadata"`
}

// CallbackPayload is the provider notification envelope.
type CallbackPayload struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// CallbackResult is the handler's verdict. Accepted=false with a nil error
// still maps to HTTP 200: the provider retries on non-2xx and a retry would
// not change the outcome.
type CallbackResult struct {
	Accepted bool
	Reason   string
	Outcome  string
}

// CallbackUseCase turns untrusted, possibly-duplicate provider notifications
// into at-most-one subscription per transaction.
type CallbackUseCase struct {
	transactions repository.TransactionRepository
	accounts     repository.AccountRepository
	subs         *SubscriptionUseCase
	access       *AccessUseCase
	bot          notifier
	log          zerolog.Logger
}

// notifier is the thin outbound-message surface the reconciliation path
// needs; satisfied by adapter.TelegramBotAdapter.
type notifier interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
}

func NewCallbackUseCase(
	transactions repository.TransactionRepository,
	accounts repository.AccountRepository,
	subs *SubscriptionUseCase,
	access *AccessUseCase,
	bot notifier,
	log *zerolog.Logger,
) *CallbackUseCase {
	return &CallbackUseCase{
		transactions: transactions,
		accounts:     accounts,
		subs:         subs,
		access:       access,
		bot:          bot,
		log:          log.With().Str("component", "callback_uc").Logger(),
	}
}

// HandleCallback processes one provider notification. Only a malformed
// payload or an internal failure produces an error; every semantically
// handled case, including failures we record, comes back as a result.
func (uc *CallbackUseCase) HandleCallback(ctx context.Context, payload *CallbackPayload) (CallbackResult, error) {
	cb, err := validateCallback(payload)
	if err != nil {
		metrics.IncCallback(OutcomeMalformed)
		return CallbackResult{Accepted: false, Reason: "malformed payload", Outcome: OutcomeMalformed}, err
	}

	txn, err := uc.transactions.FindByCheckoutID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			uc.log.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback for unknown transaction")
			metrics.IncCallback(OutcomeUnknownTransaction)
			return CallbackResult{Accepted: false, Reason: "transaction not found", Outcome: OutcomeUnknownTransaction}, nil
		}
		return CallbackResult{}, err
	}

	// Idempotency: a terminal transaction makes any re-delivery a no-op.
	if !txn.IsPending() {
		uc.log.Info().Str("checkout_request_id", cb.CheckoutRequestID).Str("status", string(txn.Status)).Msg("callback replay ignored")
		metrics.IncCallback(OutcomeDuplicate)
		return CallbackResult{Accepted: true, Reason: "already processed", Outcome: OutcomeDuplicate}, nil
	}

	if *cb.ResultCode != 0 {
		if err := uc.markFailed(ctx, txn); err != nil {
			return CallbackResult{}, err
		}
		uc.log.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", *cb.ResultCode).
			Str("result_desc", cb.ResultDesc).
			Msg("payment failed")
		metrics.IncCallback(OutcomePaymentFailed)
		if acct, lookupErr := uc.accounts.FindByID(ctx, txn.AccountID); lookupErr == nil {
			uc.notify(ctx, acct.TelegramID, "Your payment was not completed. You can retry anytime with /start.")
		}
		return CallbackResult{Accepted: true, Reason: "payment failure recorded", Outcome: OutcomePaymentFailed}, nil
	}

	receipt := extractReceipt(cb.CallbackMetadata)
	if receipt == "" {
		// A "successful" payment without a receipt is unverifiable, so it
		// is recorded as failed.
		if err := uc.markFailed(ctx, txn); err != nil {
			return CallbackResult{}, err
		}
		uc.log.Error().Str("checkout_request_id", cb.CheckoutRequestID).Msg("success callback without receipt")
		metrics.IncCallback(OutcomeReceiptMissing)
		return CallbackResult{Accepted: false, Reason: "receipt missing", Outcome: OutcomeReceiptMissing}, nil
	}

	if _, err := uc.Finalize(ctx, txn, receipt); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			// The money moved but we cannot credit anyone. Flagged for
			// manual follow-up, never retried automatically.
			uc.log.Error().
				Str("checkout_request_id", cb.CheckoutRequestID).
				Str("account_id", txn.AccountID).
				Msg("completed transaction has no account")
			metrics.IncCallback(OutcomeAccountMissing)
			return CallbackResult{Accepted: false, Reason: "account not found", Outcome: OutcomeAccountMissing}, nil
		}
		return CallbackResult{}, err
	}

	metrics.IncCallback(OutcomeCompleted)
	return CallbackResult{Accepted: true, Reason: "payment completed", Outcome: OutcomeCompleted}, nil
}

// Finalize completes a pending transaction and applies the success effects:
// subscription creation (authoritative), then best-effort group grant and
// notifications. Shared by the webhook and the scheduler's poll path.
//
// The poll workers act on copies fetched at list time, and a webhook can
// land in between, so the transition always starts from the stored row; a
// transaction that is already terminal makes this a no-op.
func (uc *CallbackUseCase) Finalize(ctx context.Context, txn *model.Transaction, receipt string) (*model.Subscription, error) {
	current, err := uc.transactions.FindByCheckoutID(ctx, txn.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if !current.IsPending() {
		uc.log.Info().
			Str("checkout_request_id", current.CheckoutRequestID).
			Str("status", string(current.Status)).
			Msg("transaction already terminal, finalize skipped")
		return nil, nil
	}
	completed, err := current.Complete(receipt)
	if err != nil {
		return nil, err
	}
	if err := uc.transactions.Save(ctx, completed); err != nil {
		return nil, fmt.Errorf("persist completed transaction: %w", err)
	}
	metrics.IncTransaction(string(model.TransactionStatusCompleted))
	metrics.AddPaymentRevenue(completed.Amount)

	acct, err := uc.accounts.FindByID(ctx, completed.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}

	// The checkout request id doubles as the payment reference, so one
	// transaction can never credit two subscriptions.
	sub, err := uc.subs.Create(ctx, acct.TelegramID, completed.Tier, completed.CheckoutRequestID, completed.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// A concurrent finalization beat us to it; the subscription
			// exists, which is all that matters.
			uc.log.Info().Str("checkout_request_id", completed.CheckoutRequestID).Msg("subscription already credited")
			return nil, nil
		}
		return nil, err
	}

	grant := uc.access.Grant(ctx, acct.TelegramID)
	if !grant.Success {
		uc.log.Warn().
			Err(grant.Err).
			Int64("telegram_id", acct.TelegramID).
			Str("checkout_request_id", completed.CheckoutRequestID).
			Msg("group grant failed after successful payment")
	}

	uc.notify(ctx, acct.TelegramID,
		fmt.Sprintf("Payment confirmed. Receipt: %s, amount: KES %.0f, package: %s. Your subscription is active until %s.",
			receipt, completed.Amount, completed.Tier, sub.EndDate.Format("2006-01-02 15:04")))
	if grant.Success {
		uc.notify(ctx, acct.TelegramID, "Group access is on its way. Use /status anytime to check your subscription.")
	} else {
		uc.notify(ctx, acct.TelegramID, "We could not grant group access automatically. Use /access to retry, or contact support with your receipt number.")
	}

	uc.log.Info().
		Str("checkout_request_id", completed.CheckoutRequestID).
		Int64("telegram_id", acct.TelegramID).
		Str("receipt", receipt).
		Msg("transaction finalized")
	return sub, nil
}

// MarkFailed records a definitive provider failure for a pending
// transaction. Used by the reconciliation and stale-cleanup sweeps.
func (uc *CallbackUseCase) MarkFailed(ctx context.Context, txn *model.Transaction) error {
	return uc.markFailed(ctx, txn)
}

func (uc *CallbackUseCase) markFailed(ctx context.Context, txn *model.Transaction) error {
	// Same stale-copy hazard as Finalize: a webhook may have completed the
	// transaction since the caller fetched it.
	current, err := uc.transactions.FindByCheckoutID(ctx, txn.CheckoutRequestID)
	if err != nil {
		return err
	}
	failed, err := current.Fail()
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			uc.log.Info().
				Str("checkout_request_id", current.CheckoutRequestID).
				Str("status", string(current.Status)).
				Msg("transaction already terminal, failure mark skipped")
			return nil
		}
		return err
	}
	if err := uc.transactions.Save(ctx, failed); err != nil {
		return fmt.Errorf("persist failed transaction: %w", err)
	}
	metrics.IncTransaction(string(model.TransactionStatusFailed))
	return nil
}

// notify sends a best-effort user message; failures are logged only.
func (uc *CallbackUseCase) notify(ctx context.Context, tgID int64, text string) {
	if err := uc.bot.SendMessage(ctx, tgID, text); err != nil {
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("notification failed")
	}
}

func validateCallback(payload *CallbackPayload) (*StkCallback, error) {
	if payload == nil || payload.Body.StkCallback == nil {
		return nil, domain.ErrMalformedPayload
	}
	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" || cb.ResultCode == nil {
		return nil, domain.ErrMalformedPayload
	}
	return cb, nil
}

// extractReceipt finds the first metadata item named MpesaReceiptNumber.
// Values arrive as strings or numbers depending on the provider's mood.
func extractReceipt(meta *StkCallbackMetadata) string {
	if meta == nil {
		return ""
	}
	for _, item := range meta.Item {
		if item.Name != receiptItemName || item.Value == nil {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
