// Package cache is a small JSON cache over Redis. A Redis that is unconfigured or
// unreachable turns every operation into a miss or a no-op instead of an error at
// start-up, so the API keeps serving straight from Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrUnavailable = errors.New("cache: redis unavailable")

type Options struct {
	Addr     string
	Password string
	DB       int
}

type Redis struct {
	client *redis.Client
	logger logrus.FieldLogger

	warnedUnavailable atomic.Bool
}

// NewRedis connects to Redis and pings it once. An empty address or a failed ping
// yields a bypassing cache.
func NewRedis(ctx context.Context, opts Options, logger logrus.FieldLogger) *Redis {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Addr == "" {
		logger.Info("cache: REDIS_ADDR not set, stats cache disabled")
		return &Redis{logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("cache: redis unavailable, bypassing cache")
		_ = client.Close()
		return &Redis{logger: logger}
	}

	return NewWithClient(client, logger)
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *redis.Client, logger logrus.FieldLogger) *Redis {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Enabled() bool {
	return r != nil && r.client != nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.WithError(err).Warn("cache: redis command failed, continuing without cache")
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return ErrUnavailable
	}
	return r.client.Ping(ctx).Err()
}

// GetJSON decodes the value at key into out. It reports false on a miss.
func (r *Redis) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		r.warnUnavailableOnce(err)
		return false, err
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, b, ttl).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if !r.Enabled() {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.warnUnavailableOnce(err)
		return err
	}
	return nil
}

// Counter returns the integer stored at key, 0 when absent.
func (r *Redis) Counter(ctx context.Context, key string) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		r.warnUnavailableOnce(err)
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Incr atomically increments the counter at key.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return 0, err
	}
	return n, nil
}

func (r *Redis) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}
