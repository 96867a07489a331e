// Package store persists group settings, the proxy catalog and user consent.
// Identifiers are stored pseudonymously: users by UserKey, domains by salted
// hash.
package store

import (
	"context"
	"errors"
	"maps"

	"github.com/jdelaire/dirtylaunderer/core/identity"
)

// Behaviors a group can apply to a link.
const (
	BehaviorClean = "clean"
	BehaviorProxy = "proxy"
)

// ErrInvalidChatID is returned for an empty chat identifier.
var ErrInvalidChatID = errors.New("invalid chat id")

// GroupConfig is the per-chat link handling configuration. DomainRules is
// keyed by hashed domain.
type GroupConfig struct {
	DefaultBehavior string            `bson:"default_behavior,omitempty" json:"default_behavior,omitempty"`
	DomainRules     map[string]string `bson:"domain_rules,omitempty" json:"domain_rules"`
}

// Repository is the persistence surface used by the HTTP handlers and bot
// commands.
type Repository interface {
	GroupConfig(ctx context.Context, chatID string) (GroupConfig, error)
	// UpdateGroupConfig merges cfg into the stored config. Domain rule keys
	// in cfg are plain domains; they are hashed before storage.
	UpdateGroupConfig(ctx context.Context, chatID string, cfg GroupConfig) error
	ProxyConfig(ctx context.Context) (map[string][]string, error)
	UpdateProxyConfig(ctx context.Context, proxies map[string][]string) error
	UserConsent(ctx context.Context, userKey string) (bool, error)
	SetUserConsent(ctx context.Context, userKey string, consent bool) error
}

// DefaultGroupConfig is returned for chats without a stored config.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		DefaultBehavior: BehaviorClean,
		DomainRules:     map[string]string{},
	}
}

// DefaultProxyConfig is returned until a proxy sync has stored a catalog.
func DefaultProxyConfig() map[string][]string {
	return map[string][]string{
		"invidious": {
			"https://invidious.snopyta.org",
			"https://yewtu.be",
			"https://invidious.kavin.rocks",
		},
		"nitter": {
			"https://nitter.net",
			"https://nitter.privacydev.net",
			"https://nitter.kavin.rocks",
		},
		"libreddit": {
			"https://libreddit.kavin.rocks",
			"https://libreddit.privacydev.net",
		},
		"scribe": {
			"https://scribe.rip",
			"https://scribe.privacydev.net",
		},
	}
}

func hashRules(h *identity.Hasher, rules map[string]string) map[string]string {
	if rules == nil {
		return nil
	}
	hashed := make(map[string]string, len(rules))
	for domain, rule := range rules {
		hashed[h.DomainKey(domain)] = rule
	}
	return hashed
}

func cloneProxies(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneGroup(cfg GroupConfig) GroupConfig {
	out := cfg
	out.DomainRules = maps.Clone(cfg.DomainRules)
	if out.DomainRules == nil {
		out.DomainRules = map[string]string{}
	}
	return out
}
