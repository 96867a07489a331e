package ops

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/dirtylaunderer/core/identity"
	"github.com/jdelaire/dirtylaunderer/internal/store"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&StartOp{})
	r.Register(&PrivacyOp{})
	r.Register(&HelpOp{Registry: r})
	r.Register(&DeleteOp{})
	r.Register(&StatusOp{})
	r.Register(&PingOp{})
	r.Register(&CommandsOp{Registry: r})
	return r
}

func TestHelpListsPublicCommandsOnly(t *testing.T) {
	r := newTestRegistry()
	reply, err := r.Get("help").Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"The Dirty Launderer🧼 is here to help!",
		"/privacy - View privacy policy",
		"/delete - Delete messages",
		"/help - Show this help",
	} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("help missing %q:\n%s", want, reply.Text)
		}
	}
	if strings.Contains(reply.Text, "/status") {
		t.Errorf("help should not list admin commands:\n%s", reply.Text)
	}
	if strings.Index(reply.Text, "/delete") > strings.Index(reply.Text, "/privacy") {
		t.Errorf("expected commands sorted by name:\n%s", reply.Text)
	}
}

func TestCommandsListsBothAudiences(t *testing.T) {
	r := newTestRegistry()
	reply, err := r.Get("commands").Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(reply.Text, "📖 Dirty Launderer Command Reference") {
		t.Errorf("unexpected header:\n%s", reply.Text)
	}
	for _, want := range []string{"/status - ", "/ping - ", "/start - "} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("commands missing %q:\n%s", want, reply.Text)
		}
	}
}

func TestWelcomeMentionsAdminCommands(t *testing.T) {
	r := newTestRegistry()
	w := &WelcomeOp{Registry: r}
	r.Register(w)

	reply, err := w.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "👋 Welcome to The Dirty Launderer🧼") {
		t.Errorf("missing greeting:\n%s", reply.Text)
	}
	if !strings.Contains(reply.Text, "/welcome - Show the welcome message") {
		t.Errorf("missing welcome entry:\n%s", reply.Text)
	}
}

func TestStartAndPrivacy(t *testing.T) {
	reply, err := (&StartOp{}).Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "Send me a URL") {
		t.Errorf("unexpected start text: %q", reply.Text)
	}
	if reply.ParseMode != "" {
		t.Errorf("expected plain start text, got parse mode %q", reply.ParseMode)
	}

	reply, err = (&PrivacyOp{}).Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.ParseMode != "Markdown" {
		t.Errorf("expected Markdown, got %q", reply.ParseMode)
	}
	if !strings.Contains(reply.Text, "*The Dirty Launderer🧼 Privacy Policy*") {
		t.Errorf("missing title:\n%s", reply.Text)
	}
	if !strings.Contains(reply.Text, "auto-deleted after 5 minutes") {
		t.Errorf("missing retention line:\n%s", reply.Text)
	}
}

type spyDeleter struct {
	deleted []int64
	failOn  int64
}

func (s *spyDeleter) Delete(_ context.Context, _ int64, messageID int64) error {
	s.deleted = append(s.deleted, messageID)
	if messageID == s.failOn {
		return errors.New("message can't be deleted")
	}
	return nil
}

func TestDeleteRemovesTargetThenCommand(t *testing.T) {
	d := &spyDeleter{}
	reply, err := (&DeleteOp{Deleter: d}).Execute(context.Background(), Request{ChatID: 1, MessageID: 10, ReplyToMessageID: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "" {
		t.Errorf("expected no reply, got %q", reply.Text)
	}
	if !reflect.DeepEqual(d.deleted, []int64{9, 10}) {
		t.Errorf("expected deletes [9 10], got %v", d.deleted)
	}
}

func TestDeleteIgnoresTargetFailure(t *testing.T) {
	d := &spyDeleter{failOn: 9}
	_, err := (&DeleteOp{Deleter: d}).Execute(context.Background(), Request{ChatID: 1, MessageID: 10, ReplyToMessageID: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(d.deleted, []int64{9, 10}) {
		t.Errorf("expected deletes [9 10], got %v", d.deleted)
	}
}

func TestDeleteLogsCommandFailure(t *testing.T) {
	var buf bytes.Buffer
	d := &spyDeleter{failOn: 10}
	op := &DeleteOp{Deleter: d, Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	reply, err := op.Execute(context.Background(), Request{ChatID: 1, MessageID: 10})
	if err != nil {
		t.Fatalf("expected failure to be swallowed, got %v", err)
	}
	if reply.Text != "" {
		t.Errorf("expected no reply, got %q", reply.Text)
	}
	if !reflect.DeepEqual(d.deleted, []int64{10}) {
		t.Errorf("expected deletes [10], got %v", d.deleted)
	}
	if !strings.Contains(buf.String(), "delete command message failed") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
}

func TestStatusCachesWebhookLookup(t *testing.T) {
	calls := 0
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &StatusOp{
		WebhookURL: func(context.Context) (string, error) {
			calls++
			return "https://example/webhook", nil
		},
		TrackedKeys:      func() int { return 3 },
		PendingDeletions: func() int { return 2 },
		now:              func() time.Time { return now },
	}

	reply, err := s.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"✅ Bot is running.\n🌐 Webhook is set",
		"Uptime:",
		"Rate-limited users tracked: 3",
		"Pending deletions: 2",
	} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("status missing %q:\n%s", want, reply.Text)
		}
	}

	now = now.Add(4 * time.Minute)
	s.Execute(context.Background(), Request{})
	if calls != 1 {
		t.Errorf("expected cached lookup, got %d calls", calls)
	}

	now = now.Add(2 * time.Minute)
	s.Execute(context.Background(), Request{})
	if calls != 2 {
		t.Errorf("expected refresh after expiry, got %d calls", calls)
	}
}

func TestStatusWebhookStates(t *testing.T) {
	s := &StatusOp{WebhookURL: func(context.Context) (string, error) { return "", nil }}
	reply, _ := s.Execute(context.Background(), Request{})
	if !strings.Contains(reply.Text, "No webhook set") {
		t.Errorf("unexpected status:\n%s", reply.Text)
	}

	failing := &StatusOp{WebhookURL: func(context.Context) (string, error) { return "", errors.New("timeout") }}
	reply, _ = failing.Execute(context.Background(), Request{})
	if !strings.Contains(reply.Text, "⚠️ Could not verify webhook info.") {
		t.Errorf("unexpected status:\n%s", reply.Text)
	}
	if failing.cached != "" {
		t.Errorf("failed lookup should not be cached, got %q", failing.cached)
	}
}

func TestPing(t *testing.T) {
	reply, err := (&PingOp{}).Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "Pong") {
		t.Errorf("unexpected ping reply: %q", reply.Text)
	}
}

type proxySource struct {
	services map[string][]string
	err      error
}

func (p proxySource) ProxyConfig(context.Context) (map[string][]string, error) {
	return p.services, p.err
}

func TestProxiesTitleCasesAndCounts(t *testing.T) {
	op := &ProxiesOp{Source: proxySource{services: map[string][]string{
		"nitter":    {"a", "b"},
		"invidious": {"c"},
		"scribe":    {},
	}}}
	reply, err := op.Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "🛡️ Active Proxy Frontends:\n- Invidious: 1\n- Nitter: 2\n- Scribe: 0"
	if reply.Text != want {
		t.Errorf("expected %q, got %q", want, reply.Text)
	}
}

func TestProxiesFailures(t *testing.T) {
	reply, _ := (&ProxiesOp{Source: proxySource{err: errors.New("down")}}).Execute(context.Background(), Request{})
	if !strings.Contains(reply.Text, "Failed to retrieve proxy data") {
		t.Errorf("unexpected reply: %q", reply.Text)
	}

	reply, _ = (&ProxiesOp{Source: proxySource{}}).Execute(context.Background(), Request{})
	if reply.Text != "❌ No validated proxies available." {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
}

func TestConfigSummary(t *testing.T) {
	ctx := context.Background()
	h := identity.NewHasher("salt")
	repo := store.NewMemory(h)
	op := &ConfigSummaryOp{Source: repo}

	reply, err := op.Execute(ctx, Request{ChatID: -100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "🛠️ Current Group Config:\nDefault behavior: clean\nNo domain-specific overrides configured."
	if reply.Text != want {
		t.Errorf("expected %q, got %q", want, reply.Text)
	}

	err = repo.UpdateGroupConfig(ctx, "-100", store.GroupConfig{
		DefaultBehavior: store.BehaviorProxy,
		DomainRules:     map[string]string{"youtube.com": store.BehaviorProxy},
	})
	if err != nil {
		t.Fatalf("update group config: %v", err)
	}
	reply, err = op.Execute(ctx, Request{ChatID: -100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply.Text, "Default behavior: proxy") {
		t.Errorf("missing default behavior:\n%s", reply.Text)
	}
	if !strings.Contains(reply.Text, "- "+h.DomainKey("youtube.com")+": proxy") {
		t.Errorf("missing hashed rule:\n%s", reply.Text)
	}
	if strings.Contains(reply.Text, "youtube.com") {
		t.Errorf("raw domain leaked:\n%s", reply.Text)
	}
}

type spyAlerter struct {
	enabled bool
	err     error
	sent    []string
}

func (s *spyAlerter) Enabled() bool { return s.enabled }
func (s *spyAlerter) Send(_ context.Context, text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

func TestAlertTest(t *testing.T) {
	a := &spyAlerter{enabled: true}
	reply, err := (&AlertTestOp{Alerter: a}).Execute(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "✅ Alert sent to admin chat ID." {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
	if len(a.sent) != 1 || a.sent[0] != "✅ This is a test alert from Dirty Launderer." {
		t.Errorf("unexpected alerts sent: %v", a.sent)
	}

	reply, _ = (&AlertTestOp{Alerter: &spyAlerter{enabled: true, err: errors.New("x")}}).Execute(context.Background(), Request{})
	if reply.Text != "❌ Failed to send alert." {
		t.Errorf("unexpected reply: %q", reply.Text)
	}

	reply, _ = (&AlertTestOp{Alerter: &spyAlerter{}}).Execute(context.Background(), Request{})
	if !strings.Contains(reply.Text, "not configured") {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
}
