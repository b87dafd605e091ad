// Package config provides shared configuration constants for the
// mediation adapter service
package config

import "time"

// Server timeout defaults
const (
	// ServerReadTimeout is the maximum duration for reading the entire request
	ServerReadTimeout = 5 * time.Second

	// ServerWriteTimeout is the maximum duration before timing out writes of the response
	ServerWriteTimeout = 10 * time.Second

	// ServerIdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	ServerIdleTimeout = 120 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

// Size limiting defaults
const (
	// DefaultMaxBodySize is the default maximum request body size (1MB)
	DefaultMaxBodySize = 1024 * 1024
)

// Adapter defaults
const (
	// DefaultLoadTimeout bounds one ad load against Vantage
	DefaultLoadTimeout = 30 * time.Second

	// DefaultShowTimeout bounds one confirmed show
	DefaultShowTimeout = 10 * time.Second

	// DefaultTokenTimeout bounds one bidder token fetch
	DefaultTokenTimeout = 5 * time.Second

	// DefaultTokenTTL is how long a fetched bidder token stays cached
	DefaultTokenTTL = 10 * time.Minute
)

// Allowlist defaults
const (
	// AllowlistRefreshInterval is how often the placement allowlist is
	// reloaded from the database
	AllowlistRefreshInterval = 60 * time.Second
)

// Redis defaults
const (
	// RedisPoolSize is the default connection pool size
	RedisPoolSize = 50
)
