package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
	"telegram-subscription-bot/internal/infra/metrics"
)

// SubscriptionState summarizes an account's entitlement for display.
type SubscriptionState string

const (
	SubscriptionStateActive  SubscriptionState = "active"
	SubscriptionStateExpired SubscriptionState = "expired"
	SubscriptionStateNone    SubscriptionState = "none"
)

// SubscriptionStatusSummary is what /status shows: the latest subscription
// (possibly expired) and the derived state.
type SubscriptionStatusSummary struct {
	State        SubscriptionState
	Subscription *model.Subscription
}

// SubscriptionUseCase implements the subscription lifecycle: windows,
// renewals, expiry.
type SubscriptionUseCase struct {
	subs     repository.SubscriptionRepository
	accounts repository.AccountRepository
	log      zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, accounts repository.AccountRepository, log *zerolog.Logger) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		subs:     subs,
		accounts: accounts,
		log:      log.With().Str("component", "subscription_uc").Logger(),
	}
}

// Create persists a new active subscription starting now. Any of the
// account's already-past-due active records are expired first, so a stale
// row never shadows the new entitlement. A reused payment reference fails
// with ErrDuplicateReference.
func (uc *SubscriptionUseCase) Create(ctx context.Context, tgID int64, tier model.PackageTier, paymentRef string, amount float64) (*model.Subscription, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	if healed, err := uc.subs.ExpirePastDue(ctx, acct.ID); err != nil {
		return nil, fmt.Errorf("expire past-due subscriptions: %w", err)
	} else if len(healed) > 0 {
		metrics.IncSubscriptionsExpired(len(healed))
	}

	sub, err := model.NewSubscription(acct.ID, tier, time.Now(), paymentRef, amount)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.Save(ctx, sub); err != nil {
		return nil, err
	}

	metrics.IncSubscriptionCreated(tier)
	uc.log.Info().
		Int64("telegram_id", tgID).
		Str("tier", string(tier)).
		Time("end_date", sub.EndDate).
		Msg("subscription created")
	return sub, nil
}

// Renew creates the next subscription record. With an active subscription
// in place the new window starts where the old one ends, so no paid time is
// lost; otherwise it starts now. The superseded record is expired.
func (uc *SubscriptionUseCase) Renew(ctx context.Context, tgID int64, tier model.PackageTier, paymentRef string, amount float64) (*model.Subscription, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	start := now
	current, err := uc.subs.FindActiveByAccount(ctx, acct.ID)
	switch {
	case err == nil:
		if current.EndDate.After(now) {
			start = current.EndDate
		}
		if err := uc.subs.Save(ctx, current.Expire()); err != nil {
			return nil, fmt.Errorf("expire superseded subscription: %w", err)
		}
		metrics.IncSubscriptionsExpired(1)
	case errors.Is(err, domain.ErrNotFound):
		// Nothing to supersede.
	default:
		return nil, err
	}

	sub, err := model.NewSubscription(acct.ID, tier, start, paymentRef, amount)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.Save(ctx, sub); err != nil {
		return nil, err
	}

	metrics.IncSubscriptionCreated(tier)
	uc.log.Info().
		Int64("telegram_id", tgID).
		Str("tier", string(tier)).
		Time("start_date", sub.StartDate).
		Time("end_date", sub.EndDate).
		Msg("subscription renewed")
	return sub, nil
}

// Current returns the most recently created subscription regardless of
// status; ErrNotFound when the account has never subscribed.
func (uc *SubscriptionUseCase) Current(ctx context.Context, tgID int64) (*model.Subscription, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	return uc.subs.FindLatestByAccount(ctx, acct.ID)
}

// IsExpired reports whether the account currently lacks entitlement. An
// unknown account and an account with zero subscriptions both count as
// expired.
func (uc *SubscriptionUseCase) IsExpired(ctx context.Context, tgID int64) (bool, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return true, nil
		}
		return true, err
	}

	sub, err := uc.subs.FindActiveByAccount(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return true, err
	}
	return sub.Expired(time.Now()), nil
}

// ForceExpire ends the account's active subscription regardless of its end
// date. Returns nil when there was nothing active.
func (uc *SubscriptionUseCase) ForceExpire(ctx context.Context, tgID int64) (*model.Subscription, error) {
	acct, err := uc.accounts.FindByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	healed, err := uc.subs.ExpirePastDue(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if len(healed) > 0 {
		metrics.IncSubscriptionsExpired(len(healed))
		uc.log.Info().Int64("telegram_id", tgID).Str("subscription_id", healed[0].ID).Msg("subscription force-expired")
		return healed[0], nil
	}

	sub, err := uc.subs.FindActiveByAccount(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	expired := sub.Expire()
	if err := uc.subs.Save(ctx, expired); err != nil {
		return nil, err
	}
	metrics.IncSubscriptionsExpired(1)
	uc.log.Info().Int64("telegram_id", tgID).Str("subscription_id", sub.ID).Msg("subscription force-expired")
	return expired, nil
}

// CountByStatus returns subscription counts keyed by status, refreshing the
// subscriptions gauge along the way.
func (uc *SubscriptionUseCase) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	counts, err := uc.subs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SetSubscriptionsTotal(counts)
	return counts, nil
}

// ListExpiringWithin returns active subscriptions ending in (now, now+window].
func (uc *SubscriptionUseCase) ListExpiringWithin(ctx context.Context, window time.Duration) ([]*model.Subscription, error) {
	return uc.subs.ListExpiringWithin(ctx, window)
}

// ListOverdue returns active subscriptions whose end date has passed.
func (uc *SubscriptionUseCase) ListOverdue(ctx context.Context) ([]*model.Subscription, error) {
	return uc.subs.ListOverdue(ctx)
}

// Status summarizes the account's latest subscription for display.
func (uc *SubscriptionUseCase) Status(ctx context.Context, tgID int64) (*SubscriptionStatusSummary, error) {
	sub, err := uc.Current(ctx, tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccountNotFound) {
			return &SubscriptionStatusSummary{State: SubscriptionStateNone}, nil
		}
		return nil, err
	}

	state := SubscriptionStateExpired
	if sub.Status == model.SubscriptionStatusActive && !sub.Expired(time.Now()) {
		state = SubscriptionStateActive
	}
	return &SubscriptionStatusSummary{State: state, Subscription: sub}, nil
}

// ExpireAccount marks the subscription expired and persists it. Used by the
// expiry sweep, which already holds the record.
func (uc *SubscriptionUseCase) ExpireAccount(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	expired := sub.Expire()
	if err := uc.subs.Save(ctx, expired); err != nil {
		return nil, err
	}
	metrics.IncSubscriptionsExpired(1)
	return expired, nil
}
