package ops

import (
	"context"
	"log/slog"
)

// StartOp greets a new user.
type StartOp struct{}

func (s *StartOp) Name() string        { return "start" }
func (s *StartOp) Description() string { return "Start the bot" }

func (s *StartOp) Execute(_ context.Context, _ Request) (Reply, error) {
	return Text("Hi! I am The Dirty Launderer🧼 bot. Send me a URL and I will clean it for you.\n" +
		"Use /help to see available commands."), nil
}

// PrivacyText is the privacy policy, formatted as Telegram Markdown.
const PrivacyText = "🔒 *The Dirty Launderer🧼 Privacy Policy*\n\n" +
	"• We do not store any personal data\n" +
	"• Messages are processed in memory only\n" +
	"• URLs are cleaned of tracking parameters\n" +
	"• Logs are anonymized and minimal\n" +
	"• Messages are auto-deleted after 5 minutes\n" +
	"• You can use /delete to remove messages immediately\n" +
	"• Rate limiting is in place to prevent abuse\n\n" +
	"By using this bot, you consent to this privacy policy."

// PrivacyOp shows the privacy policy.
type PrivacyOp struct{}

func (p *PrivacyOp) Name() string        { return "privacy" }
func (p *PrivacyOp) Description() string { return "View privacy policy" }

func (p *PrivacyOp) Execute(_ context.Context, _ Request) (Reply, error) {
	return Reply{Text: PrivacyText, ParseMode: "Markdown"}, nil
}

// MessageDeleter removes a chat message.
type MessageDeleter interface {
	Delete(ctx context.Context, chatID, messageID int64) error
}

// DeleteOp removes the message it replies to, then the command itself.
// Failures are logged and never surface to the user.
type DeleteOp struct {
	Deleter MessageDeleter
	Logger  *slog.Logger // nil uses slog.Default
}

func (d *DeleteOp) Name() string        { return "delete" }
func (d *DeleteOp) Description() string { return "Delete messages" }

func (d *DeleteOp) Execute(ctx context.Context, req Request) (Reply, error) {
	if req.ReplyToMessageID != 0 {
		// The target may already be gone; that is fine.
		_ = d.Deleter.Delete(ctx, req.ChatID, req.ReplyToMessageID)
	}
	if err := d.Deleter.Delete(ctx, req.ChatID, req.MessageID); err != nil {
		d.logger().Warn("delete command message failed", "error", err)
	}
	return Reply{}, nil
}

func (d *DeleteOp) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
