package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/domain"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/repository"
)

// TierPricing maps package tiers to their KES price.
type TierPricing map[model.PackageTier]float64

// RequestUseCase is the manual-approval path: a user submits an access
// request, an admin converts it into a subscription without the payment
// provider.
type RequestUseCase struct {
	requests repository.AccessRequestRepository
	users    *UserUseCase
	subs     *SubscriptionUseCase
	access   *AccessUseCase
	bot      notifier
	pricing  TierPricing
	log      zerolog.Logger
}

func NewRequestUseCase(
	requests repository.AccessRequestRepository,
	users *UserUseCase,
	subs *SubscriptionUseCase,
	access *AccessUseCase,
	bot notifier,
	pricing TierPricing,
	log *zerolog.Logger,
) *RequestUseCase {
	return &RequestUseCase{
		requests: requests,
		users:    users,
		subs:     subs,
		access:   access,
		bot:      bot,
		pricing:  pricing,
		log:      log.With().Str("component", "request_uc").Logger(),
	}
}

// Submit files a pending request for the user. At most one pending request
// per Telegram identity: the check here catches the common case and the
// store's partial unique index closes the race.
func (uc *RequestUseCase) Submit(ctx context.Context, tgID int64, username, phone string, tier model.PackageTier) (*model.AccessRequest, error) {
	acct, err := uc.users.RegisterOrFetch(ctx, tgID, username, phone)
	if err != nil {
		return nil, err
	}

	if _, err := uc.requests.FindPendingByTelegramID(ctx, tgID); err == nil {
		return nil, domain.ErrPendingRequestExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	req, err := model.NewAccessRequest(acct.ID, tgID, username, phone, tier)
	if err != nil {
		return nil, err
	}
	if err := uc.requests.Save(ctx, req); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return nil, domain.ErrPendingRequestExists
		}
		return nil, err
	}

	uc.log.Info().Int64("telegram_id", tgID).Str("tier", string(tier)).Msg("access request submitted")
	return req, nil
}

// Approve converts a pending request into a subscription, grants group
// access, and notifies the user. A processed request cannot be approved
// again.
func (uc *RequestUseCase) Approve(ctx context.Context, requestID string, adminID int64) (*model.AccessRequest, error) {
	req, err := uc.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	approved, err := req.Approve(adminID)
	if err != nil {
		return nil, err
	}
	if err := uc.requests.Save(ctx, approved); err != nil {
		return nil, err
	}

	amount, ok := uc.pricing[approved.Tier]
	if !ok || amount <= 0 {
		return nil, fmt.Errorf("no price configured for tier %q: %w", approved.Tier, domain.ErrInvalidArgument)
	}

	paymentRef := "ADMIN-APPROVED-" + approved.ID
	sub, err := uc.subs.Create(ctx, approved.TelegramID, approved.Tier, paymentRef, amount)
	if err != nil {
		return nil, fmt.Errorf("create subscription for approved request: %w", err)
	}

	if grant := uc.access.Grant(ctx, approved.TelegramID); !grant.Success {
		uc.log.Warn().Err(grant.Err).Int64("telegram_id", approved.TelegramID).Msg("grant failed after approval")
	}
	uc.notifyUser(ctx, approved.TelegramID,
		fmt.Sprintf("Your access request was approved. Your %s subscription is active until %s.",
			approved.Tier, sub.EndDate.Format("2006-01-02 15:04")))

	uc.log.Info().
		Str("request_id", approved.ID).
		Int64("admin_id", adminID).
		Int64("telegram_id", approved.TelegramID).
		Msg("access request approved")
	return approved, nil
}

// Reject marks a pending request rejected with an optional reason and
// notifies the user.
func (uc *RequestUseCase) Reject(ctx context.Context, requestID string, adminID int64, reason string) (*model.AccessRequest, error) {
	req, err := uc.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	rejected, err := req.Reject(adminID, reason)
	if err != nil {
		return nil, err
	}
	if err := uc.requests.Save(ctx, rejected); err != nil {
		return nil, err
	}

	msg := "Your access request was declined."
	if reason != "" {
		msg += " Reason: " + reason
	}
	uc.notifyUser(ctx, rejected.TelegramID, msg)

	uc.log.Info().
		Str("request_id", rejected.ID).
		Int64("admin_id", adminID).
		Msg("access request rejected")
	return rejected, nil
}

// ListPending returns all open requests, oldest first.
func (uc *RequestUseCase) ListPending(ctx context.Context) ([]*model.AccessRequest, error) {
	return uc.requests.ListPending(ctx)
}

func (uc *RequestUseCase) notifyUser(ctx context.Context, tgID int64, text string) {
	if err := uc.bot.SendMessage(ctx, tgID, text); err != nil {
		uc.log.Warn().Err(err).Int64("telegram_id", tgID).Msg("notification failed")
	}
}
