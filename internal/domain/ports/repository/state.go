package repository

import (
	"context"

	"telegram-subscription-bot/internal/domain/model"
)

// Purchase flow steps.
const (
	StepAwaitingPhone = "awaiting_phone"
	StepAwaitingPush  = "awaiting_push"
)

// ConversationState is the short-lived, multi-step purchase context for one
// Telegram user. It expires on its own if the user walks away.
type ConversationState struct {
	Step              string            `json:"step"`
	Tier              model.PackageTier `json:"tier,omitempty"`
	PhoneNumber       string            `json:"phone_number,omitempty"`
	CheckoutRequestID string            `json:"checkout_request_id,omitempty"`
}

type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
