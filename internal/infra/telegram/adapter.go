package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain/ports/adapter"
)

// Adapter implements the outbound Telegram ports over tgbotapi: user
// messaging plus the gated-group membership primitives. The inbound side
// (commands, callback queries) lives in Handler.
type Adapter struct {
	api     *tgbotapi.BotAPI
	groupID int64
	log     zerolog.Logger
}

var (
	_ adapter.TelegramBotAdapter = (*Adapter)(nil)
	_ adapter.GroupAdapter       = (*Adapter)(nil)
)

func NewAdapter(cfg *config.BotConfig, log *zerolog.Logger) (*Adapter, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, fmt.Errorf("telegram: missing bot token")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	return &Adapter{
		api:     api,
		groupID: cfg.GroupID,
		log:     log.With().Str("component", "telegram").Logger(),
	}, nil
}

func (a *Adapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	msg := tgbotapi.NewMessage(tgID, text)
	_, err := a.api.Send(msg)
	return err
}

func (a *Adapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	msg := tgbotapi.NewMessage(tgID, text)
	msg.ReplyMarkup = buildKeyboard(rows)
	_, err := a.api.Send(msg)
	return err
}

func buildKeyboard(rows [][]adapter.InlineButton) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		kb = append(kb, r)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

// IsMember treats creator, administrator, member, and restricted-but-present
// statuses as membership. "left" and "kicked" are not members.
func (a *Adapter) IsMember(ctx context.Context, tgID int64) (bool, error) {
	member, err := a.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: a.groupID, UserID: tgID},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d: %w", tgID, err)
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	default:
		return false, nil
	}
}

// CreateInviteLink returns a fresh single-use link that expires after ttl.
// A new link is minted per grant so a shared link never leaks access.
func (a *Adapter) CreateInviteLink(ctx context.Context, ttl time.Duration) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: a.groupID},
		ExpireDate:  int(time.Now().Add(ttl).Unix()),
		MemberLimit: 1,
	}
	resp, err := a.api.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}

func (a *Adapter) BanMember(ctx context.Context, tgID int64, until time.Time) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: a.groupID, UserID: tgID},
		UntilDate:        until.Unix(),
	}
	if _, err := a.api.Request(cfg); err != nil {
		return fmt.Errorf("ban member %d: %w", tgID, err)
	}
	return nil
}

func (a *Adapter) UnbanMember(ctx context.Context, tgID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: a.groupID, UserID: tgID},
		OnlyIfBanned:     true,
	}
	if _, err := a.api.Request(cfg); err != nil {
		return fmt.Errorf("unban member %d: %w", tgID, err)
	}
	return nil
}

func (a *Adapter) BotIsAdmin(ctx context.Context) (bool, error) {
	member, err := a.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: a.groupID, UserID: a.api.Self.ID},
	})
	if err != nil {
		return false, fmt.Errorf("get own membership: %w", err)
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

func (a *Adapter) answerCallback(id, text string) {
	if _, err := a.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		a.log.Warn().Err(err).Msg("answer callback query failed")
	}
}
