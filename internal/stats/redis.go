package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrFailedToParseURL  = errors.New("failed to parse redis connection string")
	ErrRedisNotReady     = errors.New("redis did not become ready")
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)

// Connect parses url and pings the server, retrying up to attempts times.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}
	if attempts <= 0 {
		attempts = 1
	}

	for range attempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, ErrRedisNotReady
}

// Healthcheck returns a ping probe for the health endpoint.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// RedisRecorder writes counters to Redis hashes:
//
//	<prefix>:total                 allowed / denied, never expires
//	<prefix>:minute:YYYYMMDDhhmm   allowed / denied, expires after ttl
//	<prefix>:command               per-command counts
type RedisRecorder struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the lifetime of per-minute buckets.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "launderer:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	bucket := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucket, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucket, r.ttl)
	}

	if ev.Command != "" {
		pipe.HIncrBy(ctx, r.prefix+":command", ev.Command, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Totals reads the cumulative allowed and denied counters.
func (r *RedisRecorder) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := r.rdb.HGetAll(ctx, r.prefix+":total").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read stats totals: %w", err)
	}
	allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return allowed, denied, nil
}
