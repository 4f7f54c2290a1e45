package model

import (
	"time"

	"telegram-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

type PackageTier string

const (
	TierShort  PackageTier = "short"  // one day
	TierMedium PackageTier = "medium" // seven days
	TierLong   PackageTier = "long"   // one calendar month
)

func (t PackageTier) Valid() bool {
	switch t {
	case TierShort, TierMedium, TierLong:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is one entitlement window. Renewals create a new record; the
// superseded record is flipped to expired rather than mutated in place.
type Subscription struct {
	ID         string
	AccountID  string
	Tier       PackageTier
	StartDate  time.Time
	EndDate    time.Time
	Status     SubscriptionStatus
	PaymentRef string // unique across all subscriptions
	Amount     float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AddTier returns start advanced by the tier window. The long tier uses
// time.AddDate calendar-month semantics, so Jan 31 normalizes forward
// rather than clamping; tests pin this behavior.
func AddTier(start time.Time, tier PackageTier) (time.Time, error) {
	switch tier {
	case TierShort:
		return start.AddDate(0, 0, 1), nil
	case TierMedium:
		return start.AddDate(0, 0, 7), nil
	case TierLong:
		return start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, domain.ErrInvalidArgument
}

// NewSubscription builds an active subscription starting at start with the
// end date derived from the tier.
func NewSubscription(accountID string, tier PackageTier, start time.Time, paymentRef string, amount float64) (*Subscription, error) {
	if accountID == "" || paymentRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	end, err := AddTier(start, tier)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Subscription{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		Tier:       tier,
		StartDate:  start,
		EndDate:    end,
		Status:     SubscriptionStatusActive,
		PaymentRef: paymentRef,
		Amount:     amount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Expired reports whether the entitlement window has passed, regardless of status.
func (s *Subscription) Expired(now time.Time) bool {
	return now.After(s.EndDate)
}

// ExpiringSoon reports whether the subscription is active and ends within the window.
func (s *Subscription) ExpiringSoon(now time.Time, within time.Duration) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndDate.After(now) && !s.EndDate.After(now.Add(within))
}

// Expire returns a copy with status set to expired. The caller persists it.
func (s *Subscription) Expire() *Subscription {
	cp := *s
	cp.Status = SubscriptionStatusExpired
	cp.UpdatedAt = time.Now()
	return &cp
}
