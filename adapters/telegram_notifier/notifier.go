package telegram_notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdelaire/dirtylaunderer/core"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// Telegram allows roughly 30 messages per second per bot.
	defaultRate  = 30
	defaultBurst = 5
)

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

var _ core.Messenger = (*Notifier)(nil)

// Notifier sends and deletes messages via the Telegram Bot API.
type Notifier struct {
	botToken string
	client   *http.Client
	baseURL  string
	limiter  *rate.Limiter
}

// New creates a Telegram notifier for the given bot token.
func New(botToken string) *Notifier {
	return &Notifier{
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
		limiter:  rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
	}
}

func (n *Notifier) Name() string { return "telegram" }

// Send delivers a message and returns the ID Telegram assigned to it.
func (n *Notifier) Send(ctx context.Context, notif core.Notification) (int64, error) {
	payload := map[string]any{
		"chat_id": notif.ChatID,
		"text":    notif.Text,
	}
	if notif.ParseMode != core.ParseModeNone {
		payload["parse_mode"] = notif.ParseMode
	}

	resp, err := n.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}

	var sent sentMessage
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}
	return sent.MessageID, nil
}

// Delete removes a message from a chat.
func (n *Notifier) Delete(ctx context.Context, chatID, messageID int64) error {
	_, err := n.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

func (n *Notifier) call(ctx context.Context, method string, payload map[string]any) (*apiResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API error %d: %s", resp.StatusCode, out.Description)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, decodeErr)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, out.Description)
	}
	return &out, nil
}

// WithBaseURL sets a custom base URL (for testing).
func (n *Notifier) WithBaseURL(baseURL string) *Notifier {
	n.baseURL = baseURL
	return n
}

// WithRate overrides the outbound pacing.
func (n *Notifier) WithRate(perSecond float64, burst int) *Notifier {
	n.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return n
}
