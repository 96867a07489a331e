package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jdelaire/dirtylaunderer/adapters/telegram_receiver"
	"github.com/jdelaire/dirtylaunderer/core"
	"github.com/jdelaire/dirtylaunderer/core/configwatch"
	"github.com/jdelaire/dirtylaunderer/core/ops"
	"github.com/jdelaire/dirtylaunderer/core/policy"
	"github.com/jdelaire/dirtylaunderer/core/ratelimit"
	"github.com/jdelaire/dirtylaunderer/internal/app"
	"github.com/jdelaire/dirtylaunderer/internal/config"
	"github.com/jdelaire/dirtylaunderer/internal/expiry"
	"github.com/jdelaire/dirtylaunderer/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	poll := flag.Bool("poll", false, "receive updates by long polling instead of the webhook")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger, *poll); err != nil {
		logger.Error("launderer stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, poll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if a.Token == "" {
		return errors.New("telegram bot token is not set")
	}

	limiter := ratelimit.New(ratelimit.WithQuota(cfg.RateLimit), ratelimit.WithWindow(cfg.RateWindow))

	var deletions *expiry.Store
	if cfg.PendingDeletionsFile != "" {
		deletions = expiry.NewStore(cfg.PendingDeletionsFile)
	}
	scheduler, err := expiry.NewScheduler(a.Notifier, deletions, cfg.MessageTTL, logger)
	if err != nil {
		return fmt.Errorf("restore pending deletions: %w", err)
	}

	registry := ops.NewRegistry()
	if err := registerOps(registry, a, limiter, scheduler); err != nil {
		return err
	}

	dispatcher := core.NewDispatcher(policy.New(cfg.AdminChatIDs), registry, a.Notifier, limiter, a.Hasher, logger).
		WithExpiry(scheduler).
		WithStats(a.Stats).
		WithMaxTextLen(cfg.MaxTextLen)

	receiver := telegram_receiver.New(a.Token, dispatcher.Handle, logger).WithBaseURL(cfg.TelegramAPIURL)

	syncer, err := a.ProxySyncer(ctx)
	if err != nil {
		return err
	}

	watcher, err := configwatch.New(0, logger)
	if err != nil {
		return err
	}
	if err := watcher.Watch(cfg.ProxiesFile, func(path string) {
		if err := a.Catalog.Reload(path); err != nil {
			logger.Warn("proxy catalog reload failed, keeping previous", "path", path, "error", err)
			return
		}
		logger.Info("proxy catalog reloaded", "services", len(a.Catalog.Services()))
	}); err != nil {
		logger.Warn("proxy catalog not watched", "path", cfg.ProxiesFile, "error", err)
	}

	go watcher.Run(ctx)
	go scheduler.Run(ctx)
	go janitor(ctx, limiter, cfg.CleanupInterval)

	srv := core.NewServer(cfg.ListenAddr, a.Repo, a.Hasher, logger).
		WithWebhookChecker(a.WebhookChecker()).
		WithProxySyncer(syncer)
	for name, check := range a.Checks {
		srv.WithHealthCheck(name, check)
	}

	if poll {
		go startReceiver(ctx, receiver, logger)
	} else {
		srv.WithWebhook(receiver)
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startReceiver(ctx context.Context, r core.Receiver, logger *slog.Logger) {
	if err := r.Start(ctx); err != nil {
		logger.Error("receiver stopped", "error", err)
	}
}

func registerOps(reg *ops.Registry, a *app.App, limiter *ratelimit.Limiter, scheduler *expiry.Scheduler) error {
	list := []ops.Op{
		&ops.StartOp{},
		&ops.HelpOp{Registry: reg},
		&ops.PrivacyOp{},
		&ops.DeleteOp{Deleter: a.Notifier, Logger: a.Logger},
		&ops.CommandsOp{Registry: reg},
		&ops.WelcomeOp{Registry: reg},
		&ops.PingOp{},
		&ops.StatusOp{
			WebhookURL: func(ctx context.Context) (string, error) {
				info, err := a.Webhook.Info(ctx)
				return info.URL, err
			},
			TrackedKeys:      limiter.Len,
			PendingDeletions: scheduler.Pending,
		},
		&ops.ProxiesOp{Source: a.Catalog},
		&ops.ConfigSummaryOp{Source: a.Repo},
		&ops.AlertTestOp{Alerter: a.Alerts},
	}
	for _, op := range list {
		if err := reg.Register(op); err != nil {
			return fmt.Errorf("register %s: %w", op.Name(), err)
		}
	}
	return nil
}

// janitor sweeps idle rate limit windows so keys that never return are
// forgotten.
func janitor(ctx context.Context, limiter *ratelimit.Limiter, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			limiter.Cleanup()
		}
	}
}
