package repository

import (
	"context"
	"time"

	"telegram-subscription-bot/internal/domain/model"
)

// SubscriptionRepository is the port for entitlement records.
type SubscriptionRepository interface {
	// Save upserts by ID. Insertion of a second subscription with an
	// already-used payment reference fails with domain.ErrDuplicateReference.
	Save(ctx context.Context, sub *model.Subscription) error
	FindByID(ctx context.Context, id string) (*model.Subscription, error)

	// FindActiveByAccount returns the account's active subscription whose end
	// date is still in the future; with several candidates the latest end
	// date wins. domain.ErrNotFound when none.
	FindActiveByAccount(ctx context.Context, accountID string) (*model.Subscription, error)

	// FindLatestByAccount returns the most recently created subscription for
	// the account regardless of status.
	FindLatestByAccount(ctx context.Context, accountID string) (*model.Subscription, error)

	// ListExpiringWithin returns active subscriptions ending in (now, now+window].
	ListExpiringWithin(ctx context.Context, window time.Duration) ([]*model.Subscription, error)

	// ListOverdue returns active subscriptions whose end date has passed.
	ListOverdue(ctx context.Context) ([]*model.Subscription, error)

	// ExpirePastDue flips the account's already-past-due active records to
	// expired and returns them, latest end date first.
	ExpirePastDue(ctx context.Context, accountID string) ([]*model.Subscription, error)

	// CountByStatus returns subscription counts keyed by status.
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}
