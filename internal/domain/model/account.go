package model

import (
	"regexp"
	"strings"
	"time"

	"telegram-subscription-bot/internal/domain"

	"github.com/google/uuid"
)

// Account is a domain entity representing a Telegram user in our system.
// One account per Telegram identity; accounts are never deleted.
type Account struct {
	ID          string
	TelegramID  int64
	Username    string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var kenyanPhoneRe = regexp.MustCompile(`^(\+?254|0)?[17]\d{8}$`)

func NewAccount(id string, tgID int64, username, phone string) (*Account, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if phone != "" && !ValidPhoneNumber(phone) {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Account{
		ID:          id,
		TelegramID:  tgID,
		Username:    username,
		PhoneNumber: NormalizePhoneNumber(phone),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidPhoneNumber reports whether s is a Kenyan mobile number in any of the
// accepted formats (2547XXXXXXXX, 07XXXXXXXX, 7XXXXXXXX).
func ValidPhoneNumber(s string) bool {
	return kenyanPhoneRe.MatchString(cleanPhone(s))
}

// NormalizePhoneNumber converts an accepted phone format to international
// 254XXXXXXXXX form. Unrecognized input is returned cleaned but unchanged.
func NormalizePhoneNumber(s string) string {
	c := cleanPhone(s)
	switch {
	case strings.HasPrefix(c, "254"):
		return c
	case strings.HasPrefix(c, "0"):
		return "254" + c[1:]
	case len(c) == 9 && (c[0] == '7' || c[0] == '1'):
		return "254" + c
	}
	return c
}

func cleanPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "+", "").Replace(s)
}
