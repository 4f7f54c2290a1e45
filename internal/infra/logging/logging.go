// File: internal/infra/logging/logging.go
package logging

import (
	"os"
	"strings"
	"time"

	"telegram-subscription-bot/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Level accepts the usual zerolog names,
// format is "json" or "console"; dev mode forces console output. With
// sampling on, after the first 100 events only every 100th is kept.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w = os.Stdout
	base := zerolog.New(w)
	if dev || strings.EqualFold(cfg.Format, "console") {
		base = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}
	logger := base.With().Timestamp().Logger()

	if cfg.Sampling && !dev {
		logger = logger.Sample(&zerolog.BasicSampler{N: 100})
	}
	return &logger
}

// RedactPhone hides all but the last four digits of a phone number for logs.
func RedactPhone(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) < 4 {
		return "****"
	}
	masked := strings.Repeat("*", len(s)-4)
	return masked + s[len(s)-4:]
}
