package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/usecase"
)

const (
	staleAfter = time.Hour
	staleBatch = 500
)

// StaleCleanupWorker fails pending transactions the reconciler gave up on.
// After an hour an STK push can no longer complete, so leaving the record
// pending only clutters the reconciliation window.
type StaleCleanupWorker struct {
	interval     time.Duration
	transactions repository.TransactionRepository
	callbacks    *usecase.CallbackUseCase
	log          zerolog.Logger
}

func NewStaleCleanupWorker(
	interval time.Duration,
	transactions repository.TransactionRepository,
	callbacks *usecase.CallbackUseCase,
	log *zerolog.Logger,
) *StaleCleanupWorker {
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	return &StaleCleanupWorker{
		interval:     interval,
		transactions: transactions,
		callbacks:    callbacks,
		log:          log.With().Str("component", "stale_cleanup").Logger(),
	}
}

func (w *StaleCleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting stale cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping stale cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StaleCleanupWorker) tick(ctx context.Context) {
	metrics.IncSchedulerRun("stale_cleanup")
	stale, err := w.transactions.ListPendingOlderThan(ctx, time.Now().Add(-staleAfter), staleBatch)
	if err != nil {
		metrics.IncSchedulerError("stale_cleanup")
		w.log.Error().Err(err).Msg("list stale pending transactions")
		return
	}
	for _, txn := range stale {
		if err := w.callbacks.MarkFailed(ctx, txn); err != nil {
			metrics.IncSchedulerError("stale_cleanup")
			w.log.Error().Err(err).Str("checkout_request_id", txn.CheckoutRequestID).Msg("fail stale transaction")
			continue
		}
		w.log.Info().
			Str("checkout_request_id", txn.CheckoutRequestID).
			Time("created_at", txn.CreatedAt).
			Msg("stale pending transaction failed")
	}
	if len(stale) > 0 {
		w.log.Info().Int("count", len(stale)).Msg("stale cleanup pass finished")
	}
}
