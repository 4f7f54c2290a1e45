package adapter

import (
	"context"
	"time"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// TelegramBotAdapter sends user-facing messages.
type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
}

// GroupAdapter wraps the group membership primitives of the chat transport.
// Implementations return plain errors; callers convert them to best-effort
// results because membership actions never gate financial state.
type GroupAdapter interface {
	// IsMember reports whether the user currently belongs to the gated group.
	IsMember(ctx context.Context, telegramID int64) (bool, error)

	// CreateInviteLink returns a single-use invite link that expires after ttl.
	CreateInviteLink(ctx context.Context, ttl time.Duration) (string, error)

	// BanMember removes the user with a ban that auto-expires at until.
	BanMember(ctx context.Context, telegramID int64, until time.Time) error

	// UnbanMember lifts a ban if one is in place.
	UnbanMember(ctx context.Context, telegramID int64) error

	// BotIsAdmin reports whether the bot holds administrator rights in the group.
	BotIsAdmin(ctx context.Context) (bool, error)
}
