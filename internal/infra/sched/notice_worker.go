package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
	"telegram-subscription-bot/internal/infra/redis"
	"telegram-subscription-bot/internal/usecase"
)

// ExpiryNoticeWorker reminds users whose subscription ends within the notice
// window. The redis limiter keys the reminder on the subscription id, so one
// subscription gets at most one reminder per window no matter how many
// hourly passes see it.
type ExpiryNoticeWorker struct {
	interval time.Duration
	window   time.Duration
	subs     *usecase.SubscriptionUseCase
	accounts repository.AccountRepository
	bot      adapter.TelegramBotAdapter
	limiter  *redis.RateLimiter
	log      zerolog.Logger
}

func NewExpiryNoticeWorker(
	interval, window time.Duration,
	subs *usecase.SubscriptionUseCase,
	accounts repository.AccountRepository,
	bot adapter.TelegramBotAdapter,
	limiter *redis.RateLimiter,
	log *zerolog.Logger,
) *ExpiryNoticeWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &ExpiryNoticeWorker{
		interval: interval,
		window:   window,
		subs:     subs,
		accounts: accounts,
		bot:      bot,
		limiter:  limiter,
		log:      log.With().Str("component", "expiry_notice_worker").Logger(),
	}
}

func (w *ExpiryNoticeWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("window", w.window).Msg("starting expiry notice worker")
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry notice worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryNoticeWorker) tick(ctx context.Context) {
	metrics.IncSchedulerRun("expiry_notice")
	expiring, err := w.subs.ListExpiringWithin(ctx, w.window)
	if err != nil {
		metrics.IncSchedulerError("expiry_notice")
		w.log.Error().Err(err).Msg("list expiring subscriptions")
		return
	}

	for _, sub := range expiring {
		fresh, err := w.limiter.Allow(ctx, redis.NoticeKey(sub.ID), 1, w.window)
		if err != nil {
			metrics.IncSchedulerError("expiry_notice")
			w.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("notice dedupe unavailable")
			continue
		}
		if !fresh {
			continue
		}

		acct, err := w.accounts.FindByID(ctx, sub.AccountID)
		if err != nil {
			metrics.IncSchedulerError("expiry_notice")
			w.log.Error().Err(err).Str("account_id", sub.AccountID).Msg("account lookup for notice")
			continue
		}
		msg := fmt.Sprintf("Heads up: your subscription expires on %s. Use /renew to extend it without losing access.",
			sub.EndDate.Local().Format("Mon, 02 Jan 2006 15:04"))
		if err := w.bot.SendMessage(ctx, acct.TelegramID, msg); err != nil {
			w.log.Warn().Err(err).Int64("telegram_id", acct.TelegramID).Msg("expiry notice delivery failed")
			continue
		}
		w.log.Info().Int64("telegram_id", acct.TelegramID).Str("subscription_id", sub.ID).Msg("expiry notice sent")
	}
}
