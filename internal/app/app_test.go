package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/dirtylaunderer/internal/config"
	"github.com/jdelaire/dirtylaunderer/internal/stats"
	"github.com/jdelaire/dirtylaunderer/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxies_validated.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nitter":["https://n.example"]}`), 0o644))

	return config.Config{
		HashSalt:           "pepper",
		TelegramAPIURL:     "http://127.0.0.1:1",
		ExpectedWebhookURL: "https://bot.example/hook",
		ProxiesFile:        path,
		BucketDestPath:     "proxies.json",
	}
}

func TestNewFallsBackToMemoryBackends(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	a, err := New(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, "123:abc", a.Token)
	assert.IsType(t, &store.Memory{}, a.Repo)
	assert.IsType(t, &stats.MemoryRecorder{}, a.Stats)
	assert.Empty(t, a.Checks)
	assert.Equal(t, []string{"nitter"}, a.Catalog.Services())
}

func TestNewToleratesMissingCatalog(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg := testConfig(t)
	cfg.ProxiesFile = filepath.Join(t.TempDir(), "missing.json")

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Empty(t, a.Catalog.Services())
}

func TestNewFailsOnBadRedisURL(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg := testConfig(t)
	cfg.RedisURL = "not a url"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.ErrorIs(t, err, stats.ErrFailedToParseURL)
}

func TestProxySyncerWiring(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GITHUB_TOKEN", "gh")

	a, err := New(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	s, err := a.ProxySyncer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.Uploader, "no bucket configured")
	assert.Same(t, a.Catalog, s.Catalog)
	assert.Equal(t, "proxies.json", s.DestKey)
	assert.NotNil(t, a.WebhookChecker())
}
