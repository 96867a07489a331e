// Package webhookcheck keeps the bot's registered Telegram webhook pointed
// at the expected URL.
package webhookcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jdelaire/dirtylaunderer/adapters/telegram_webhook"
)

// AlertPrefix tags every alert sent by the checker.
const AlertPrefix = "🚨 [Dirty Launderer Webhook] "

// Result statuses.
const (
	StatusOK      = "ok"
	StatusUpdated = "updated"
)

var (
	ErrMissingConfig = errors.New("missing bot token or expected webhook URL")
	ErrInvalidURL    = errors.New("invalid expected webhook URL")
)

// WebhookAPI reads and sets the bot webhook.
type WebhookAPI interface {
	Info(ctx context.Context) (telegram_webhook.Info, error)
	Set(ctx context.Context, url string) error
}

// Alerter notifies operators.
type Alerter interface {
	Send(ctx context.Context, text string) error
}

// Result is the outcome of a check.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Checker compares the registered webhook with the expected one.
type Checker struct {
	api      WebhookAPI
	expected string
	token    string
	alerter  Alerter
	logger   *slog.Logger
}

// New creates a Checker. token is only used to scrub error text.
func New(api WebhookAPI, token, expectedURL string, alerter Alerter, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{api: api, expected: expectedURL, token: token, alerter: alerter, logger: logger}
}

// Run checks the webhook and re-registers it when it differs.
func (c *Checker) Run(ctx context.Context) (Result, error) {
	if c.api == nil || c.token == "" || c.expected == "" {
		c.logger.Error("webhook check misconfigured")
		return Result{}, ErrMissingConfig
	}
	if !validURL(c.expected) {
		c.logger.Error("invalid expected webhook URL")
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidURL, c.expected)
	}

	c.logger.Info("checking current webhook configuration")
	info, err := c.api.Info(ctx)
	if err != nil {
		return Result{}, c.fail(ctx, err)
	}

	if info.URL == c.expected {
		c.logger.Info("webhook is correctly configured")
		return Result{Status: StatusOK, Message: "Webhook is up to date"}, nil
	}

	c.logger.Warn("webhook mismatch", "current_set", info.URL != "")
	if err := c.api.Set(ctx, c.expected); err != nil {
		return Result{}, c.fail(ctx, err)
	}

	msg := "Webhook successfully updated to: " + c.expected
	c.logger.Info(msg)
	c.alert(ctx, msg)
	return Result{Status: StatusUpdated, Message: msg}, nil
}

func (c *Checker) fail(ctx context.Context, err error) error {
	text := c.redact(err.Error())
	c.logger.Error("webhook check failed", "error", text)
	c.alert(ctx, "❌ HTTP error: "+text)
	return fmt.Errorf("webhook check: %s", text)
}

func (c *Checker) alert(ctx context.Context, text string) {
	if c.alerter == nil {
		c.logger.Warn("alert chat not configured, alert not sent")
		return
	}
	// Delivery failures are already logged by the alerter.
	_ = c.alerter.Send(ctx, text)
}

func (c *Checker) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "<redacted>")
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
