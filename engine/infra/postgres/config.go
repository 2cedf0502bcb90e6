package postgres

import "time"

// Config holds PostgreSQL connection settings for the chunk store pool.
type Config struct {
	ConnString        string
	MaxConns          int
	ConnectTimeout    time.Duration
	PingTimeout       time.Duration
	HealthCheckPeriod time.Duration
	// Label distinguishes pools in metrics when more than one is open.
	Label string
}
