package ops

import (
	"context"
	"fmt"
	"strings"
)

// HelpOp lists the public commands.
type HelpOp struct {
	Registry *Registry
}

func (h *HelpOp) Name() string        { return "help" }
func (h *HelpOp) Description() string { return "Show this help" }

func (h *HelpOp) Execute(_ context.Context, _ Request) (Reply, error) {
	var b strings.Builder
	b.WriteString("The Dirty Launderer🧼 is here to help!\n\n")
	b.WriteString("Send me any URL and I will remove tracking parameters and proxy it through privacy-friendly frontends.\n\n")
	b.WriteString("Commands:\n")
	for _, op := range h.Registry.ListAccess(AccessPublic) {
		fmt.Fprintf(&b, "/%s - %s\n", op.Name(), op.Description())
	}
	b.WriteString("\nMade with 🧼 by The Dirty Launderer🧼 team")
	return Text(b.String()), nil
}

// CommandsOp is the admin command reference.
type CommandsOp struct {
	adminOnly
	Registry *Registry
}

func (c *CommandsOp) Name() string        { return "commands" }
func (c *CommandsOp) Description() string { return "Show the admin command reference" }

func (c *CommandsOp) Execute(_ context.Context, _ Request) (Reply, error) {
	var b strings.Builder
	b.WriteString("📖 Dirty Launderer Command Reference\n\n")
	b.WriteString("🛠️ Admin tools:\n")
	for _, op := range c.Registry.ListAccess(AccessAdmin) {
		fmt.Fprintf(&b, "/%s - %s\n", op.Name(), op.Description())
	}
	b.WriteString("\n👤 Everyone:\n")
	for _, op := range c.Registry.ListAccess(AccessPublic) {
		fmt.Fprintf(&b, "/%s - %s\n", op.Name(), op.Description())
	}
	return Text(strings.TrimRight(b.String(), "\n")), nil
}

// WelcomeOp introduces the bot to a group.
type WelcomeOp struct {
	adminOnly
	Registry *Registry
}

func (w *WelcomeOp) Name() string        { return "welcome" }
func (w *WelcomeOp) Description() string { return "Show the welcome message" }

func (w *WelcomeOp) Execute(_ context.Context, _ Request) (Reply, error) {
	var b strings.Builder
	b.WriteString("👋 Welcome to The Dirty Launderer🧼, your privacy-first link cleaner bot.\n\n")
	b.WriteString("🧼 This bot removes tracking parameters from URLs and can proxy uncleanable links via privacy frontends like ")
	b.WriteString("Invidious, Nitter, Libreddit, and more.\n\n")
	b.WriteString("🔧 Admin Commands:\n")
	for _, op := range w.Registry.ListAccess(AccessAdmin) {
		fmt.Fprintf(&b, "/%s - %s\n", op.Name(), op.Description())
	}
	b.WriteString("\n👁️ By default, tracking links are auto-cleaned or redirected.\n\n")
	b.WriteString("💃 A lady in the streets, and clean in the sheets… of tracking parameters. 🧼")
	return Text(b.String()), nil
}
