package ops

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

const webhookCacheTTL = 5 * time.Minute

var startTime = time.Now()

// StatusOp reports bot health. The webhook lookup is cached for five
// minutes.
type StatusOp struct {
	adminOnly

	WebhookURL       func(ctx context.Context) (string, error)
	TrackedKeys      func() int // optional
	PendingDeletions func() int // optional

	now       func() time.Time
	mu        sync.Mutex
	cached    string
	checkedAt time.Time
}

func (s *StatusOp) Name() string        { return "status" }
func (s *StatusOp) Description() string { return "Check bot and webhook health" }

func (s *StatusOp) Execute(ctx context.Context, _ Request) (Reply, error) {
	var b strings.Builder
	b.WriteString(s.webhookStatus(ctx))

	uptime := time.Since(startTime).Truncate(time.Second)
	fmt.Fprintf(&b, "\nUptime: %s\nGo: %s\nGoroutines: %d", uptime, runtime.Version(), runtime.NumGoroutine())
	if s.TrackedKeys != nil {
		fmt.Fprintf(&b, "\nRate-limited users tracked: %d", s.TrackedKeys())
	}
	if s.PendingDeletions != nil {
		fmt.Fprintf(&b, "\nPending deletions: %d", s.PendingDeletions())
	}
	return Text(b.String()), nil
}

func (s *StatusOp) webhookStatus(ctx context.Context) string {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && now().Sub(s.checkedAt) < webhookCacheTTL {
		return s.cached
	}

	if s.WebhookURL == nil {
		return "✅ Bot is running."
	}
	url, err := s.WebhookURL(ctx)
	if err != nil {
		return "⚠️ Could not verify webhook info."
	}

	state := "No webhook set"
	if url != "" {
		state = "Webhook is set"
	}
	s.cached = "✅ Bot is running.\n🌐 " + state
	s.checkedAt = now()
	return s.cached
}

// PingOp answers with a pong.
type PingOp struct {
	adminOnly
}

func (p *PingOp) Name() string        { return "ping" }
func (p *PingOp) Description() string { return "Basic bot ping" }

func (p *PingOp) Execute(_ context.Context, _ Request) (Reply, error) {
	return Text("🏓 Pong! The Dirty Launderer🧼 is running."), nil
}
