package telegram_webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxConnections = 100
)

var allowedUpdates = []string{"message", "callback_query"}

// Info is the subset of getWebhookInfo the bot cares about.
type Info struct {
	URL                  string `json:"url"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	MaxConnections       int    `json:"max_connections,omitempty"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client reads and registers the bot's webhook URL.
type Client struct {
	botToken string
	client   *http.Client
	baseURL  string
}

// New creates a webhook client for the given bot token.
func New(botToken string) *Client {
	return &Client{
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
	}
}

// WithBaseURL overrides the Telegram API base URL (for testing).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// Info returns the currently registered webhook.
func (c *Client) Info(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getWebhookInfo"), nil)
	if err != nil {
		return Info{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return Info{}, err
	}

	var info Info
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return Info{}, fmt.Errorf("decode webhook info: %w", err)
	}
	return info, nil
}

// Set registers url as the bot's webhook.
func (c *Client) Set(ctx context.Context, url string) error {
	body, err := json.Marshal(map[string]any{
		"url":             url,
		"allowed_updates": allowedUpdates,
		"max_connections": maxConnections,
	})
	if err != nil {
		return fmt.Errorf("encode setWebhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("setWebhook"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.client.Do(req)
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
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram API returned ok=false: %s", out.Description)
	}
	return &out, nil
}
