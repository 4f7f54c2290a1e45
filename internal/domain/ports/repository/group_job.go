package repository

import (
	"context"
	"time"

	"telegram-subscription-bot/internal/domain/model"
)

// GroupJobRepository stores delayed group actions (currently unbans) so they
// survive process restarts.
type GroupJobRepository interface {
	Save(ctx context.Context, j *model.GroupJob) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.GroupJob, error)
	MarkDone(ctx context.Context, id string) error
}
