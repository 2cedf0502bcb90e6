package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/pkg/logger"
)

// Redis wraps the client shared by cache implementations.
type Redis struct {
	client redis.UniversalClient
	config *Config
	once   sync.Once
}

// NewRedis connects to cfg.URL and verifies the server answers a ping.
func NewRedis(ctx context.Context, cfg *Config) (*Redis, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %s", core.RedactString(err.Error()))
	}
	client := redis.NewClient(opt)
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	if err := pingRedis(ctx, client, timeout); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.FromContext(ctx).Debug("Redis connection established", "addr", opt.Addr, "db", opt.DB)
	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, cfg *Config) *Redis {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Redis{client: client, config: cfg}
}

func pingRedis(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

// Close shuts down the Redis connection. It is safe to call more than once.
func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		err = r.client.Close()
	})
	return err
}

// Client returns the underlying Redis client
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) key(parts ...string) string {
	out := r.config.prefix()
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}
