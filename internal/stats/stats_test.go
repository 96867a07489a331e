package stats

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, Event{UserKey: "aaaa0000", Allowed: true, Command: "start"}))
	require.NoError(t, r.Record(ctx, Event{UserKey: "aaaa0000", Allowed: true}))
	require.NoError(t, r.Record(ctx, Event{UserKey: "bbbb1111", Allowed: false, Command: "help"}))

	s := r.Snapshot()
	assert.Equal(t, int64(2), s.Allowed)
	assert.Equal(t, int64(1), s.Denied)
	assert.Equal(t, map[string]int64{"start": 1, "help": 1}, s.Commands)
}

func TestMemoryRecorderBoundedByCommands(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	for i := 0; i < 100000; i++ {
		key := fmt.Sprintf("%08x", i)
		require.NoError(t, r.Record(ctx, Event{UserKey: key, Allowed: i%2 == 0, Command: "start"}))
	}

	assert.Len(t, r.commands, 1)
	s := r.Snapshot()
	assert.Equal(t, int64(50000), s.Allowed)
	assert.Equal(t, int64(50000), s.Denied)
	assert.Equal(t, map[string]int64{"start": 100000}, s.Commands)
}

func TestMemoryRecorderConcurrent(t *testing.T) {
	r := NewMemoryRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Record(context.Background(), Event{Allowed: true})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), r.Snapshot().Allowed)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url", 1, time.Millisecond)
	assert.ErrorIs(t, err, ErrFailedToParseURL)
}

func TestRedisRecorder(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()

	client, err := Connect(ctx, url, 1, time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	prefix := "test:" + uuid.NewString()
	r := NewRedisRecorder(client, WithPrefix(prefix+":"), WithTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})

	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, r.Record(ctx, Event{Allowed: true, Command: "help", At: at}))
	require.NoError(t, r.Record(ctx, Event{Allowed: false, At: at}))

	allowed, denied, err := r.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), allowed)
	assert.Equal(t, int64(1), denied)

	ttl, err := client.TTL(ctx, prefix+":minute:202503011230").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	n, err := client.HGet(ctx, prefix+":command", "help").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
