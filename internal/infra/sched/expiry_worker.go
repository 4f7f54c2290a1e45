package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/usecase"
)

// ExpiryWorker sweeps overdue active subscriptions: marks them expired,
// revokes group membership, and tells the user. One failed account never
// blocks the rest of the sweep.
type ExpiryWorker struct {
	interval time.Duration
	subs     *usecase.SubscriptionUseCase
	access   *usecase.AccessUseCase
	accounts repository.AccountRepository
	bot      adapter.TelegramBotAdapter
	log      zerolog.Logger
}

func NewExpiryWorker(
	interval time.Duration,
	subs *usecase.SubscriptionUseCase,
	access *usecase.AccessUseCase,
	accounts repository.AccountRepository,
	bot adapter.TelegramBotAdapter,
	log *zerolog.Logger,
) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ExpiryWorker{
		interval: interval,
		subs:     subs,
		access:   access,
		accounts: accounts,
		bot:      bot,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	metrics.IncSchedulerRun("expiry")
	overdue, err := w.subs.ListOverdue(ctx)
	if err != nil {
		metrics.IncSchedulerError("expiry")
		w.log.Error().Err(err).Msg("list overdue subscriptions")
		return
	}
	for _, sub := range overdue {
		if _, err := w.subs.ExpireAccount(ctx, sub); err != nil {
			metrics.IncSchedulerError("expiry")
			w.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expire subscription")
			continue
		}

		acct, err := w.accounts.FindByID(ctx, sub.AccountID)
		if err != nil {
			metrics.IncSchedulerError("expiry")
			w.log.Error().Err(err).Str("account_id", sub.AccountID).Msg("account lookup for expiry")
			continue
		}

		if res := w.access.Revoke(ctx, acct.TelegramID); !res.Success {
			w.log.Warn().Err(res.Err).Int64("telegram_id", acct.TelegramID).Msg("revoke on expiry failed")
		}
		if err := w.bot.SendMessage(ctx, acct.TelegramID,
			"Your subscription has expired and group access was removed. Use /renew to come back anytime."); err != nil {
			w.log.Warn().Err(err).Int64("telegram_id", acct.TelegramID).Msg("expiry notification failed")
		}
		w.log.Info().Int64("telegram_id", acct.TelegramID).Str("subscription_id", sub.ID).Msg("subscription expired")
	}
}
