package model

import (
	"time"

	"telegram-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

type GroupJobKind string

const (
	// GroupJobUnban lifts the temporary ban placed on removal so the user
	// can rejoin after a future renewal.
	GroupJobUnban GroupJobKind = "unban"
)

// GroupJob is a persisted delayed group action. Storing it instead of using
// an in-process timer means a restart cannot lose a scheduled unban.
type GroupJob struct {
	ID         string
	Kind       GroupJobKind
	TelegramID int64
	DueAt      time.Time
	CreatedAt  time.Time
	DoneAt     *time.Time
}

func NewGroupJob(kind GroupJobKind, tgID int64, dueAt time.Time) (*GroupJob, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &GroupJob{
		ID:         uuid.NewString(),
		Kind:       kind,
		TelegramID: tgID,
		DueAt:      dueAt,
		CreatedAt:  time.Now(),
	}, nil
}
