package cache

import "time"

// Config describes the Redis connection used for shared caches.
type Config struct {
	URL string
	// Prefix namespaces every key written by this process.
	Prefix      string
	TTL         time.Duration
	PingTimeout time.Duration
}

const (
	defaultPrefix      = "docqa:"
	defaultPingTimeout = 5 * time.Second
)

func (c *Config) prefix() string {
	if c.Prefix == "" {
		return defaultPrefix
	}
	return c.Prefix
}
