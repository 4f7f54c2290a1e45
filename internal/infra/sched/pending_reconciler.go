package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/usecase"
)

// syntheticReceipt stamps transactions completed through the poll path when
// the provider's status query carries no receipt number.
const syntheticReceipt = "AUTO-VERIFY"

const (
	reconcileMinAge   = time.Minute
	reconcileMaxAge   = 10 * time.Minute
	reconcileBatch    = 200
	reconcileAttempts = 3
)

// PendingReconciler covers lost callbacks: pending transactions old enough
// that the callback should have arrived are queried directly against the
// provider and finalized or failed on a definitive answer. Inconclusive
// answers leave the transaction for the next pass or the stale cleanup.
type PendingReconciler struct {
	interval     time.Duration
	transactions repository.TransactionRepository
	gateway      adapter.PaymentGateway
	callbacks    *usecase.CallbackUseCase
	log          zerolog.Logger
}

func NewPendingReconciler(
	interval time.Duration,
	transactions repository.TransactionRepository,
	gateway adapter.PaymentGateway,
	callbacks *usecase.CallbackUseCase,
	log *zerolog.Logger,
) *PendingReconciler {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &PendingReconciler{
		interval:     interval,
		transactions: transactions,
		gateway:      gateway,
		callbacks:    callbacks,
		log:          log.With().Str("component", "pending_reconciler").Logger(),
	}
}

func (w *PendingReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting pending reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping pending reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PendingReconciler) tick(ctx context.Context) {
	metrics.IncSchedulerRun("reconcile")
	now := time.Now()
	pending, err := w.transactions.ListPendingCreatedBetween(ctx, now.Add(-reconcileMaxAge), now.Add(-reconcileMinAge), reconcileBatch)
	if err != nil {
		metrics.IncSchedulerError("reconcile")
		w.log.Error().Err(err).Msg("list pending transactions")
		return
	}

	for _, txn := range pending {
		w.reconcile(ctx, txn)
	}
}

func (w *PendingReconciler) reconcile(ctx context.Context, txn *model.Transaction) {
	res := w.gateway.GetTransactionStatus(ctx, txn.CheckoutRequestID, reconcileAttempts)
	switch res.State {
	case adapter.TransactionStateCompleted:
		receipt := res.ReceiptNumber
		if receipt == "" {
			receipt = syntheticReceipt
		}
		if _, err := w.callbacks.Finalize(ctx, txn, receipt); err != nil {
			metrics.IncSchedulerError("reconcile")
			w.log.Error().Err(err).Str("checkout_request_id", txn.CheckoutRequestID).Msg("finalize polled transaction")
			return
		}
		w.log.Info().Str("checkout_request_id", txn.CheckoutRequestID).Msg("pending transaction reconciled as completed")
	case adapter.TransactionStateFailed:
		if err := w.callbacks.MarkFailed(ctx, txn); err != nil {
			metrics.IncSchedulerError("reconcile")
			w.log.Error().Err(err).Str("checkout_request_id", txn.CheckoutRequestID).Msg("fail polled transaction")
			return
		}
		w.log.Info().
			Str("checkout_request_id", txn.CheckoutRequestID).
			Str("reason", res.Message).
			Msg("pending transaction reconciled as failed")
	default:
		// Still pending or the query was inconclusive; try again next pass.
		w.log.Debug().Str("checkout_request_id", txn.CheckoutRequestID).Msg("transaction still pending")
	}
}
