package telegram_receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jdelaire/dirtylaunderer/core"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	longPollTimeout = 30
	httpTimeout     = 35 * time.Second
	errorBackoff    = 5 * time.Second

	// MaxUpdateBytes bounds a webhook request body.
	MaxUpdateBytes = 1 << 20
)

type apiResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	MessageID int64      `json:"message_id"`
	From      *user      `json:"from"`
	Chat      chat       `json:"chat"`
	Date      int64      `json:"date"`
	Text      string     `json:"text"`
	ReplyTo   *repliedTo `json:"reply_to_message"`
}

type repliedTo struct {
	MessageID int64 `json:"message_id"`
}

type user struct {
	ID int64 `json:"id"`
}

type chat struct {
	ID int64 `json:"id"`
}

var _ core.Receiver = (*Receiver)(nil)

// Receiver turns Telegram updates into inbound messages. Updates arrive
// either by webhook (ServeHTTP) or by long polling (Start).
type Receiver struct {
	botToken string
	handler  core.MessageHandler
	logger   *slog.Logger
	client   *http.Client
	baseURL  string
	offset   int64
}

// New creates a Telegram receiver.
func New(botToken string, handler core.MessageHandler, logger *slog.Logger) *Receiver {
	return &Receiver{
		botToken: botToken,
		handler:  handler,
		logger:   logger,
		client:   &http.Client{Timeout: httpTimeout},
		baseURL:  defaultBaseURL,
	}
}

// WithBaseURL overrides the Telegram API base URL (for testing).
func (r *Receiver) WithBaseURL(url string) *Receiver {
	r.baseURL = url
	return r
}

// ServeHTTP handles one webhook delivery. The update is processed before
// the response is written, so the hosting function stays alive until the
// reply has been sent.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.logger.Error("invalid request method", "method", req.Method)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, MaxUpdateBytes+1))
	if err != nil || len(data) > MaxUpdateBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad request"})
		return
	}

	var u update
	if err := json.Unmarshal(data, &u); err != nil {
		r.logger.Error("invalid JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	r.dispatch(u)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins the long-poll loop. Blocks until ctx is cancelled.
func (r *Receiver) Start(ctx context.Context) error {
	r.logger.Info("telegram receiver started")
	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("telegram receiver stopped")
			return nil
		}

		updates, err := r.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("telegram receiver stopped")
				return nil
			}
			r.logger.Error("poll error", "error", err)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, u := range updates {
			r.dispatch(u)
			r.offset = u.UpdateID + 1
		}
	}
}

// dispatch forwards text messages to the handler and ignores everything else.
func (r *Receiver) dispatch(u update) {
	msg, ok := toInbound(u)
	if !ok {
		return
	}
	r.handler(msg)
}

func toInbound(u update) (core.InboundMessage, bool) {
	if u.Message == nil || u.Message.Text == "" {
		return core.InboundMessage{}, false
	}

	msg := core.InboundMessage{
		UpdateID:  u.UpdateID,
		ChatID:    u.Message.Chat.ID,
		MessageID: u.Message.MessageID,
		Text:      u.Message.Text,
		Timestamp: time.Unix(u.Message.Date, 0),
	}
	if u.Message.From != nil {
		msg.UserID = u.Message.From.ID
	}
	if u.Message.ReplyTo != nil {
		msg.ReplyToMessageID = u.Message.ReplyTo.MessageID
	}
	return msg, true
}

func (r *Receiver) poll(ctx context.Context) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d",
		r.baseURL, r.botToken, r.offset, longPollTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api status: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !apiResp.OK {
		return nil, fmt.Errorf("api returned ok=false")
	}

	var updates []update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	return updates, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
