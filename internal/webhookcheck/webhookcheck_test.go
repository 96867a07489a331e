package webhookcheck

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/dirtylaunderer/adapters/telegram_webhook"
)

const (
	token    = "123:SECRET"
	expected = "https://example.run.app/webhook"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAPI struct {
	current string
	infoErr error
	setErr  error
	setURL  string
}

func (f *fakeAPI) Info(context.Context) (telegram_webhook.Info, error) {
	return telegram_webhook.Info{URL: f.current}, f.infoErr
}

func (f *fakeAPI) Set(_ context.Context, url string) error {
	f.setURL = url
	return f.setErr
}

type spyAlerter struct{ sent []string }

func (s *spyAlerter) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return nil
}

func TestRunUpToDate(t *testing.T) {
	api := &fakeAPI{current: expected}
	alerts := &spyAlerter{}

	res, err := New(api, token, expected, alerts, discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusOK, Message: "Webhook is up to date"}, res)
	assert.Empty(t, api.setURL)
	assert.Empty(t, alerts.sent)
}

func TestRunUpdatesMismatch(t *testing.T) {
	api := &fakeAPI{current: "https://old.example/webhook"}
	alerts := &spyAlerter{}

	res, err := New(api, token, expected, alerts, discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.Equal(t, "Webhook successfully updated to: "+expected, res.Message)
	assert.Equal(t, expected, api.setURL)
	assert.Equal(t, []string{"Webhook successfully updated to: " + expected}, alerts.sent)
}

func TestRunMissingConfig(t *testing.T) {
	for _, tc := range []struct{ token, url string }{{"", expected}, {token, ""}} {
		_, err := New(&fakeAPI{}, tc.token, tc.url, nil, discard).Run(context.Background())
		assert.ErrorIs(t, err, ErrMissingConfig)
	}
}

func TestRunInvalidURL(t *testing.T) {
	for _, u := range []string{"example.com/webhook", "https://", "::"} {
		_, err := New(&fakeAPI{}, token, u, nil, discard).Run(context.Background())
		assert.ErrorIs(t, err, ErrInvalidURL, u)
	}
}

func TestRunTransportFailureAlertsWithoutToken(t *testing.T) {
	api := &fakeAPI{infoErr: errors.New("telegram request: Get \"https://api.telegram.org/bot" + token + "/getWebhookInfo\": timeout")}
	alerts := &spyAlerter{}

	_, err := New(api, token, expected, alerts, discard).Run(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET")

	require.Len(t, alerts.sent, 1)
	assert.Contains(t, alerts.sent[0], "❌ HTTP error: ")
	assert.NotContains(t, alerts.sent[0], "SECRET")
}

func TestRunSetFailure(t *testing.T) {
	api := &fakeAPI{current: "", setErr: errors.New("telegram API error 400: bad webhook")}
	alerts := &spyAlerter{}

	_, err := New(api, token, expected, alerts, discard).Run(context.Background())
	require.Error(t, err)
	require.Len(t, alerts.sent, 1)
	assert.Equal(t, "❌ HTTP error: telegram API error 400: bad webhook", alerts.sent[0])
}

func TestRunWithoutAlerter(t *testing.T) {
	api := &fakeAPI{current: "x"}
	res, err := New(api, token, expected, nil, discard).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
}
