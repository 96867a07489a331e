package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jdelaire/dirtylaunderer/core/identity"
	"github.com/jdelaire/dirtylaunderer/core/ops"
	"github.com/jdelaire/dirtylaunderer/core/policy"
	"github.com/jdelaire/dirtylaunderer/core/ratelimit"
	"github.com/jdelaire/dirtylaunderer/core/sanitize"
	"github.com/jdelaire/dirtylaunderer/internal/stats"
)

const (
	maxConcurrentOps = 8
	opTimeout        = 30 * time.Second
	sendTimeout      = 10 * time.Second

	// DefaultMaxTextLen bounds sanitized plain-text messages, in characters.
	DefaultMaxTextLen = 2000
)

// Fixed replies.
const (
	ReplyTooLong     = "Message too long"
	ReplyComingSoon  = "URL cleaning functionality coming soon!"
	ReplyError       = "Sorry, I encountered an error processing your message."
	ReplyBusy        = "Busy, too many operations running. Try again shortly."
	unknownCmdFormat = "Unknown command: /%s\nSend /help for available commands."
)

// DeletionScheduler queues bot replies for later removal.
type DeletionScheduler interface {
	Schedule(chatID, messageID int64) error
}

// Dispatcher runs the per-message pipeline: dedupe, rate limit, sanitize,
// dispatch, reply, and schedule the reply for deletion.
type Dispatcher struct {
	policy     *policy.Policy
	ops        *ops.Registry
	notifier   Notifier
	limiter    *ratelimit.Limiter
	hasher     *identity.Hasher
	expiry     DeletionScheduler
	stats      stats.Recorder
	maxTextLen int
	logger     *slog.Logger
	sem        chan struct{}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pol *policy.Policy, opsReg *ops.Registry, notifier Notifier, limiter *ratelimit.Limiter, hasher *identity.Hasher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		policy:     pol,
		ops:        opsReg,
		notifier:   notifier,
		limiter:    limiter,
		hasher:     hasher,
		maxTextLen: DefaultMaxTextLen,
		logger:     logger,
		sem:        make(chan struct{}, maxConcurrentOps),
	}
}

// WithExpiry schedules every reply for deletion through s.
func (d *Dispatcher) WithExpiry(s DeletionScheduler) *Dispatcher {
	d.expiry = s
	return d
}

// WithStats records every rate limiter decision to r.
func (d *Dispatcher) WithStats(r stats.Recorder) *Dispatcher {
	d.stats = r
	return d
}

// WithMaxTextLen overrides the plain-text length limit.
func (d *Dispatcher) WithMaxTextLen(n int) *Dispatcher {
	if n > 0 {
		d.maxTextLen = n
	}
	return d
}

// Handle processes an inbound message.
func (d *Dispatcher) Handle(msg InboundMessage) {
	if err := d.policy.Authorize(msg.UpdateID, msg.Timestamp); err != nil {
		d.logger.Debug("update rejected by policy", "error", err)
		return
	}
	if msg.Text == "" {
		return
	}

	defer d.limiter.Cleanup()

	userKey := d.hasher.UserKey(msg.UserID)
	cmd, args := parseCommand(msg.Text)
	isAdmin := d.policy.IsAdmin(msg.ChatID)

	var op ops.Op
	label := ""
	if cmd != "" {
		op = d.ops.Lookup(cmd, isAdmin)
		label = "unknown"
		if op != nil {
			label = cmd
		}
	}

	allowed, limitMsg := d.limiter.Check(userKey)
	d.record(userKey, allowed, label)
	if !allowed {
		d.logger.Info("rate limit exceeded", "user", userKey)
		d.respond(msg.ChatID, ops.Text(limitMsg))
		return
	}

	if cmd == "" {
		d.handleText(msg, userKey)
		return
	}

	if op == nil {
		d.respond(msg.ChatID, ops.Text(fmt.Sprintf(unknownCmdFormat, cmd)))
		return
	}

	// Non-blocking semaphore acquire.
	select {
	case d.sem <- struct{}{}:
	default:
		d.respond(msg.ChatID, ops.Text(ReplyBusy))
		return
	}
	defer func() { <-d.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	d.logger.Info("command", "op", cmd, "user", userKey)
	reply, err := op.Execute(ctx, ops.Request{
		ChatID:           msg.ChatID,
		MessageID:        msg.MessageID,
		ReplyToMessageID: msg.ReplyToMessageID,
		UserKey:          userKey,
		Args:             args,
		IsAdmin:          isAdmin,
	})
	if err != nil {
		d.logger.Error("op failed", "op", cmd, "user", userKey, "error", err)
		d.respond(msg.ChatID, ops.Text(ReplyError))
		return
	}
	if reply.Text != "" {
		d.respond(msg.ChatID, reply)
	}
}

func (d *Dispatcher) handleText(msg InboundMessage, userKey string) {
	clean := sanitize.Input(msg.Text)
	if utf8.RuneCountInString(clean) > d.maxTextLen {
		d.logger.Warn("message too long", "user", userKey)
		d.respond(msg.ChatID, ops.Text(ReplyTooLong))
		return
	}

	attrs := []any{"user", userKey, "length", utf8.RuneCountInString(clean)}
	if link := firstLink(msg.Text); link != "" {
		attrs = append(attrs, "domain", sanitize.SafeDomain(link))
	}
	d.logger.Info("text message", attrs...)

	d.respond(msg.ChatID, ops.Text(ReplyComingSoon))
}

func (d *Dispatcher) respond(chatID int64, reply ops.Reply) {
	n := Notification{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: reply.ParseMode,
		Source:    "dispatcher",
		CreatedAt: time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	messageID, err := d.notifier.Send(ctx, n)
	if err != nil {
		d.logger.Error("failed to send response", "error", err)
		return
	}

	if d.expiry != nil {
		if err := d.expiry.Schedule(chatID, messageID); err != nil {
			d.logger.Error("failed to schedule deletion", "error", err)
		}
	}
}

func (d *Dispatcher) record(userKey string, allowed bool, command string) {
	if d.stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev := stats.Event{UserKey: userKey, Allowed: allowed, Command: command, At: time.Now()}
	if err := d.stats.Record(ctx, ev); err != nil {
		d.logger.Warn("failed to record stats", "error", err)
	}
}

// parseCommand extracts the command name and arguments from a message.
// It handles "/command", "/command args", and "/command@botname args".
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	text = text[1:] // strip leading "/"
	parts := strings.SplitN(text, " ", 2)
	cmd = parts[0]
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	// Strip @botname suffix.
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}

	cmd = strings.ToLower(cmd)
	return cmd, args
}

// firstLink returns the first whitespace-separated token that looks like
// an http(s) URL.
func firstLink(text string) string {
	for _, tok := range strings.Fields(text) {
		lower := strings.ToLower(tok)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return tok
		}
	}
	return ""
}
