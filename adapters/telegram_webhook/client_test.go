package telegram_webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok/getWebhookInfo", r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":{"url":"https://fn.example.com/","pending_update_count":3}}`))
	}))
	defer srv.Close()

	info, err := New("tok").WithBaseURL(srv.URL).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://fn.example.com/", info.URL)
	assert.Equal(t, 3, info.PendingUpdateCount)
}

func TestInfoEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":{"url":""}}`))
	}))
	defer srv.Close()

	info, err := New("tok").WithBaseURL(srv.URL).Info(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.URL)
}

func TestSetSendsRegistrationOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bottok/setWebhook", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	err := New("tok").WithBaseURL(srv.URL).Set(context.Background(), "https://fn.example.com/")
	require.NoError(t, err)

	assert.Equal(t, "https://fn.example.com/", got["url"])
	assert.Equal(t, float64(100), got["max_connections"])
	assert.Equal(t, []any{"message", "callback_query"}, got["allowed_updates"])
}

func TestSetAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := New("bad").WithBaseURL(srv.URL).Set(context.Background(), "https://x.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}
