// Package app assembles the components shared by the bot host and the
// operator CLI from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdelaire/dirtylaunderer/adapters/telegram_notifier"
	"github.com/jdelaire/dirtylaunderer/adapters/telegram_webhook"
	"github.com/jdelaire/dirtylaunderer/core"
	"github.com/jdelaire/dirtylaunderer/core/identity"
	"github.com/jdelaire/dirtylaunderer/internal/alert"
	"github.com/jdelaire/dirtylaunderer/internal/blobstore"
	"github.com/jdelaire/dirtylaunderer/internal/config"
	"github.com/jdelaire/dirtylaunderer/internal/proxies"
	"github.com/jdelaire/dirtylaunderer/internal/secrets"
	"github.com/jdelaire/dirtylaunderer/internal/stats"
	"github.com/jdelaire/dirtylaunderer/internal/store"
	"github.com/jdelaire/dirtylaunderer/internal/webhookcheck"
)

const (
	redisAttempts = 3
	redisInterval = 2 * time.Second
)

// App holds the long-lived components.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Secrets *secrets.Store
	Hasher  *identity.Hasher

	Token    string
	Notifier *telegram_notifier.Notifier
	Webhook  *telegram_webhook.Client
	Alerts   *alert.Sender

	Repo    store.Repository
	Stats   stats.Recorder
	Catalog *proxies.Catalog

	Checks  map[string]core.HealthCheck
	closers []func(context.Context) error
}

// New resolves secrets and connects to the configured backends. Without a
// MongoDB or Redis URL the in-memory implementations are used.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Secrets: secrets.New(),
		Hasher:  identity.NewHasher(cfg.HashSalt),
		Checks:  make(map[string]core.HealthCheck),
	}

	token, err := a.Secrets.Lookup(secrets.TelegramBotToken)
	if err != nil {
		return nil, err
	}
	a.Token = token
	a.Notifier = telegram_notifier.New(token).WithBaseURL(cfg.TelegramAPIURL)
	a.Webhook = telegram_webhook.New(token).WithBaseURL(cfg.TelegramAPIURL)
	a.Alerts = alert.New(a.Notifier, cfg.AlertChatID, logger)

	if err := a.connectStore(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	if err := a.connectStats(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	services, err := proxies.LoadFile(cfg.ProxiesFile)
	if err != nil {
		logger.Warn("proxy catalog not loaded", "path", cfg.ProxiesFile, "error", err)
	}
	a.Catalog = proxies.NewCatalog(services)

	return a, nil
}

func (a *App) connectStore(ctx context.Context) error {
	if a.Config.MongoURL == "" {
		a.Logger.Warn("MONGODB_URL not set, using in-memory store")
		a.Repo = store.NewMemory(a.Hasher)
		return nil
	}

	client, err := store.Connect(ctx, store.Config{URL: a.Config.MongoURL, Database: a.Config.MongoDatabase})
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	a.Repo = store.NewMongo(client.Database(a.Config.MongoDatabase), a.Hasher)
	a.Checks["mongo"] = store.Healthcheck(client)
	a.closers = append(a.closers, client.Disconnect)
	return nil
}

func (a *App) connectStats(ctx context.Context) error {
	if a.Config.RedisURL == "" {
		a.Stats = stats.NewMemoryRecorder()
		return nil
	}

	client, err := stats.Connect(ctx, a.Config.RedisURL, redisAttempts, redisInterval)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.Stats = stats.NewRedisRecorder(client)
	a.Checks["redis"] = stats.Healthcheck(client)
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return nil
}

// WebhookChecker builds the webhook reconciler. Its alerts carry the
// webhook prefix.
func (a *App) WebhookChecker() *webhookcheck.Checker {
	alerts := a.Alerts.WithPrefix("webhook-check", webhookcheck.AlertPrefix)
	return webhookcheck.New(a.Webhook, a.Token, a.Config.ExpectedWebhookURL, alerts, a.Logger)
}

// ProxySyncer builds the proxy catalog sync. The bucket upload is enabled
// when BUCKET_NAME is set.
func (a *App) ProxySyncer(ctx context.Context) (*proxies.Syncer, error) {
	s := &proxies.Syncer{
		SourceURL: a.Config.GitHubProxyJSONURL,
		DestKey:   a.Config.BucketDestPath,
		Client:    proxies.NewGitHubClient(ctx, a.optionalSecret(secrets.GitHubToken)),
		Validator: proxies.NewValidator(nil, a.Logger),
		Store:     a.Repo,
		Catalog:   a.Catalog,
		Alerter:   a.Alerts.WithPrefix("proxy-sync", ""),
		Logger:    a.Logger,
	}

	if a.Config.BucketName != "" {
		bucket, err := a.bucket(ctx)
		if err != nil {
			return nil, err
		}
		s.Uploader = bucket
	}
	return s, nil
}

func (a *App) bucket(ctx context.Context) (*blobstore.Store, error) {
	return blobstore.New(ctx, blobstore.Config{
		Bucket:      a.Config.BucketName,
		Region:      a.Config.BucketRegion,
		Endpoint:    a.Config.BucketEndpoint,
		AccessKeyID: a.optionalSecret(secrets.BucketAccessKey),
		SecretKey:   a.optionalSecret(secrets.BucketSecretKey),
	})
}

// optionalSecret returns the named secret, or "" when it is missing or the
// keyring is unavailable, as on serverless hosts.
func (a *App) optionalSecret(name string) string {
	v, err := a.Secrets.Lookup(name)
	if err != nil {
		a.Logger.Warn("secret unavailable", "name", name, "error", err)
		return ""
	}
	return v
}

// Close disconnects the backends.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
