package adapter

import (
	"sync"
	"time"
)

// Defaults applied by validateConfig
const (
	defaultLoadTimeout  = 30 * time.Second
	defaultShowTimeout  = 10 * time.Second
	defaultTokenTimeout = 5 * time.Second
	defaultTokenTTL     = 10 * time.Minute
)

// Config holds adapter construction parameters
type Config struct {
	// LoadTimeout bounds one load operation
	LoadTimeout time.Duration

	// ShowTimeout bounds one confirmed show operation
	ShowTimeout time.Duration

	// TokenTimeout bounds one bidder token fetch
	TokenTimeout time.Duration

	// TokenTTL is how long a fetched bidder token stays cached
	TokenTTL time.Duration

	// TestMode starts the adapter with partner test mode enabled
	TestMode bool

	// PlacementAllowlist restricts loads to the listed mediation-side
	// placement ids. Empty means all placements are allowed.
	PlacementAllowlist []string
}

// DefaultConfig returns default adapter configuration
func DefaultConfig() *Config {
	return &Config{
		LoadTimeout:  defaultLoadTimeout,
		ShowTimeout:  defaultShowTimeout,
		TokenTimeout: defaultTokenTimeout,
		TokenTTL:     defaultTokenTTL,
	}
}

// validateConfig applies defaults for invalid values
func validateConfig(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaults.LoadTimeout
	}
	if cfg.ShowTimeout <= 0 {
		cfg.ShowTimeout = defaults.ShowTimeout
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = defaults.TokenTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	return cfg
}

// runtimeConfig holds the live-mutable flags: test mode and the
// placement allowlist. Both may change at runtime and are read via
// snapshot at the start of each call, so a change applies to the next
// load, never retroactively.
type runtimeConfig struct {
	mu        sync.RWMutex
	testMode  bool
	allowlist map[string]struct{}
}

func newRuntimeConfig(testMode bool, allowlist []string) *runtimeConfig {
	rc := &runtimeConfig{testMode: testMode}
	rc.setAllowlist(allowlist)
	return rc
}

func (rc *runtimeConfig) setTestMode(enabled bool) {
	rc.mu.Lock()
	rc.testMode = enabled
	rc.mu.Unlock()
}

func (rc *runtimeConfig) testModeEnabled() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.testMode
}

func (rc *runtimeConfig) setAllowlist(placements []string) {
	var set map[string]struct{}
	if len(placements) > 0 {
		set = make(map[string]struct{}, len(placements))
		for _, p := range placements {
			set[p] = struct{}{}
		}
	}
	rc.mu.Lock()
	rc.allowlist = set
	rc.mu.Unlock()
}

// allowed reports whether a placement may load. A nil allowlist allows
// everything.
func (rc *runtimeConfig) allowed(placementID string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.allowlist == nil {
		return true
	}
	_, ok := rc.allowlist[placementID]
	return ok
}
