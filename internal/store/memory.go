package store

import (
	"context"
	"sync"
	"time"

	"github.com/jdelaire/dirtylaunderer/core/identity"
)

// Memory is an in-process Repository. It backs local development when no
// MongoDB URL is configured, and tests.
type Memory struct {
	hasher *identity.Hasher
	now    func() time.Time

	mu      sync.RWMutex
	groups  map[string]GroupConfig
	proxies map[string][]string
	consent map[string]time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory(hasher *identity.Hasher) *Memory {
	if hasher == nil {
		hasher = identity.NewHasher("")
	}
	return &Memory{
		hasher:  hasher,
		now:     time.Now,
		groups:  make(map[string]GroupConfig),
		consent: make(map[string]time.Time),
	}
}

func (m *Memory) GroupConfig(_ context.Context, chatID string) (GroupConfig, error) {
	if chatID == "" {
		return GroupConfig{}, ErrInvalidChatID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.groups[chatID]
	if !ok {
		return DefaultGroupConfig(), nil
	}
	return cloneGroup(cfg), nil
}

func (m *Memory) UpdateGroupConfig(_ context.Context, chatID string, cfg GroupConfig) error {
	if chatID == "" {
		return ErrInvalidChatID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := cloneGroup(m.groups[chatID])
	if cfg.DefaultBehavior != "" {
		cur.DefaultBehavior = cfg.DefaultBehavior
	}
	for k, v := range hashRules(m.hasher, cfg.DomainRules) {
		cur.DomainRules[k] = v
	}
	m.groups[chatID] = cur
	return nil
}

func (m *Memory) ProxyConfig(context.Context) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.proxies == nil {
		return DefaultProxyConfig(), nil
	}
	return cloneProxies(m.proxies), nil
}

func (m *Memory) UpdateProxyConfig(_ context.Context, proxies map[string][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxies = cloneProxies(proxies)
	return nil
}

func (m *Memory) UserConsent(_ context.Context, userKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.consent[userKey]
	return ok, nil
}

func (m *Memory) SetUserConsent(_ context.Context, userKey string, consent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if consent {
		m.consent[userKey] = m.now()
	} else {
		delete(m.consent, userKey)
	}
	return nil
}
