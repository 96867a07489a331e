package ops

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jdelaire/dirtylaunderer/internal/store"
)

// ProxySource yields the validated proxy catalog.
type ProxySource interface {
	ProxyConfig(ctx context.Context) (map[string][]string, error)
}

// ProxiesOp summarizes active proxy frontends.
type ProxiesOp struct {
	adminOnly
	Source ProxySource
}

func (p *ProxiesOp) Name() string        { return "proxies" }
func (p *ProxiesOp) Description() string { return "Show count of active proxy frontends" }

func (p *ProxiesOp) Execute(ctx context.Context, _ Request) (Reply, error) {
	services, err := p.Source.ProxyConfig(ctx)
	if err != nil {
		return Text("❌ Failed to retrieve proxy data. Please try again later."), nil
	}
	if len(services) == 0 {
		return Text("❌ No validated proxies available."), nil
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	title := cases.Title(language.Und)
	lines := []string{"🛡️ Active Proxy Frontends:"}
	for _, name := range names {
		lines = append(lines, "- "+title.String(name)+": "+strconv.Itoa(len(services[name])))
	}
	return Text(strings.Join(lines, "\n")), nil
}

// GroupConfigSource yields a chat's link handling configuration.
type GroupConfigSource interface {
	GroupConfig(ctx context.Context, chatID string) (store.GroupConfig, error)
}

// ConfigSummaryOp shows the current chat's configuration.
type ConfigSummaryOp struct {
	adminOnly
	Source GroupConfigSource
}

func (c *ConfigSummaryOp) Name() string        { return "configsummary" }
func (c *ConfigSummaryOp) Description() string { return "Show this group's domain config" }

func (c *ConfigSummaryOp) Execute(ctx context.Context, req Request) (Reply, error) {
	cfg, err := c.Source.GroupConfig(ctx, strconv.FormatInt(req.ChatID, 10))
	if err != nil {
		return Text("❌ Failed to retrieve group configuration. Please try again later."), nil
	}

	behavior := cfg.DefaultBehavior
	if behavior == "" {
		behavior = store.BehaviorClean
	}
	lines := []string{"🛠️ Current Group Config:", "Default behavior: " + behavior}

	if len(cfg.DomainRules) == 0 {
		lines = append(lines, "No domain-specific overrides configured.")
		return Text(strings.Join(lines, "\n")), nil
	}

	keys := make([]string, 0, len(cfg.DomainRules))
	for k := range cfg.DomainRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines = append(lines, "\nOverrides:")
	for _, k := range keys {
		lines = append(lines, "- "+k+": "+cfg.DomainRules[k])
	}
	return Text(strings.Join(lines, "\n")), nil
}

// Alerter delivers operator alerts.
type Alerter interface {
	Enabled() bool
	Send(ctx context.Context, text string) error
}

// AlertTestOp sends a test alert to the alert chat.
type AlertTestOp struct {
	adminOnly
	Alerter Alerter
}

func (a *AlertTestOp) Name() string        { return "alerttest" }
func (a *AlertTestOp) Description() string { return "Send test alert to admin" }

func (a *AlertTestOp) Execute(ctx context.Context, _ Request) (Reply, error) {
	if a.Alerter == nil || !a.Alerter.Enabled() {
		return Text("❌ ALERT_CHAT_ID is not configured."), nil
	}
	if err := a.Alerter.Send(ctx, "✅ This is a test alert from Dirty Launderer."); err != nil {
		return Text("❌ Failed to send alert."), nil
	}
	return Text("✅ Alert sent to admin chat ID."), nil
}
