package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/dirtylaunderer/core/identity"
)

func TestMemoryGroupConfigDefaults(t *testing.T) {
	m := NewMemory(identity.NewHasher("salt"))

	cfg, err := m.GroupConfig(context.Background(), "-100")
	require.NoError(t, err)
	assert.Equal(t, DefaultGroupConfig(), cfg)
}

func TestMemoryUpdateGroupConfigHashesAndMerges(t *testing.T) {
	ctx := context.Background()
	h := identity.NewHasher("salt")
	m := NewMemory(h)

	require.NoError(t, m.UpdateGroupConfig(ctx, "-100", GroupConfig{
		DomainRules: map[string]string{"YouTube.com": BehaviorProxy},
	}))
	require.NoError(t, m.UpdateGroupConfig(ctx, "-100", GroupConfig{
		DefaultBehavior: BehaviorProxy,
		DomainRules:     map[string]string{"amazon.com": BehaviorClean},
	}))

	cfg, err := m.GroupConfig(ctx, "-100")
	require.NoError(t, err)

	assert.Equal(t, BehaviorProxy, cfg.DefaultBehavior)
	assert.Equal(t, map[string]string{
		h.DomainKey("youtube.com"): BehaviorProxy,
		h.DomainKey("amazon.com"):  BehaviorClean,
	}, cfg.DomainRules)
	assert.NotContains(t, cfg.DomainRules, "youtube.com")
}

func TestMemoryGroupConfigRejectsEmptyChat(t *testing.T) {
	m := NewMemory(nil)
	_, err := m.GroupConfig(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidChatID)
	assert.ErrorIs(t, m.UpdateGroupConfig(context.Background(), "", GroupConfig{}), ErrInvalidChatID)
}

func TestMemoryReturnedConfigIsACopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpdateGroupConfig(ctx, "1", GroupConfig{DomainRules: map[string]string{"a.com": "clean"}}))

	cfg, _ := m.GroupConfig(ctx, "1")
	cfg.DomainRules["injected"] = "proxy"

	again, _ := m.GroupConfig(ctx, "1")
	assert.NotContains(t, again.DomainRules, "injected")
}

func TestMemoryProxyConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	proxies, err := m.ProxyConfig(ctx)
	require.NoError(t, err)
	assert.Len(t, proxies["nitter"], 3)

	require.NoError(t, m.UpdateProxyConfig(ctx, map[string][]string{"scribe": {"https://scribe.rip"}}))
	proxies, err = m.ProxyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"scribe": {"https://scribe.rip"}}, proxies)
}

func TestMemoryUserConsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	ok, err := m.UserConsent(ctx, "abcd1234")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetUserConsent(ctx, "abcd1234", true))
	ok, _ = m.UserConsent(ctx, "abcd1234")
	assert.True(t, ok)

	require.NoError(t, m.SetUserConsent(ctx, "abcd1234", false))
	ok, _ = m.UserConsent(ctx, "abcd1234")
	assert.False(t, ok)
}
