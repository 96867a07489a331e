// Package alert delivers operator alerts to the configured admin chat.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdelaire/dirtylaunderer/core"
)

// Sender posts alerts to one chat with an optional prefix.
type Sender struct {
	notifier core.Notifier
	chatID   int64
	prefix   string
	source   string
	logger   *slog.Logger
}

// New creates a Sender. A zero chatID disables delivery.
func New(notifier core.Notifier, chatID int64, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{notifier: notifier, chatID: chatID, source: "alert", logger: logger}
}

// WithPrefix returns a copy of s that prepends prefix to every alert and
// tags it with source.
func (s *Sender) WithPrefix(source, prefix string) *Sender {
	cp := *s
	cp.source = source
	cp.prefix = prefix
	return &cp
}

// Enabled reports whether an alert chat is configured.
func (s *Sender) Enabled() bool { return s.chatID != 0 && s.notifier != nil }

// Send delivers text as HTML. A missing alert chat is logged and is not an
// error.
func (s *Sender) Send(ctx context.Context, text string) error {
	if !s.Enabled() {
		s.logger.Warn("alert chat not configured, alert not sent", "source", s.source)
		return nil
	}

	_, err := s.notifier.Send(ctx, core.Notification{
		ChatID:    s.chatID,
		Text:      s.prefix + text,
		ParseMode: core.ParseModeHTML,
		Source:    s.source,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to send alert", "source", s.source, "error", err)
		return fmt.Errorf("send alert: %w", err)
	}
	s.logger.Info("alert sent", "source", s.source)
	return nil
}
