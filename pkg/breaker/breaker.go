// Package breaker implements a circuit breaker for outbound partner calls
package breaker

import (
	"errors"
	"sync"
	"time"
)

// Circuit breaker states
const (
	StateClosed   = "closed"    // Normal operation
	StateOpen     = "open"      // Failing, rejecting requests
	StateHalfOpen = "half-open" // Testing if the partner recovered
)

// ErrOpen is returned when the circuit breaker is open
var ErrOpen = errors.New("circuit breaker is open")

// ErrTooManyConcurrent is returned when the concurrent request limit is hit
var ErrTooManyConcurrent = errors.New("max concurrent requests exceeded")

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // Failures before opening the circuit
	SuccessThreshold int           // Successes to close the circuit from half-open
	Cooldown         time.Duration // Time to wait before probing half-open
	MaxConcurrent    int           // Max concurrent requests (0 = unlimited)
	OnStateChange    func(from, to string)
}

// DefaultConfig returns sensible defaults for partner HTTP traffic
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxConcurrent:    100,
	}
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config *Config

	mu              sync.RWMutex
	state           string
	failures        int
	successes       int
	lastFailureTime time.Time
	concurrent      int

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64

	callbackWg sync.WaitGroup
}

// New creates a new circuit breaker
func New(config *Config) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the given function with circuit breaker protection
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	b.afterRequest(err)
	return err
}

// beforeRequest checks if the request should proceed
func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	switch b.state {
	case StateClosed:
		if b.config.MaxConcurrent > 0 && b.concurrent >= b.config.MaxConcurrent {
			b.totalRejected++
			return ErrTooManyConcurrent
		}
		b.concurrent++
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.Cooldown {
			b.setState(StateHalfOpen)
			b.concurrent++
			return nil
		}
		b.totalRejected++
		return ErrOpen

	case StateHalfOpen:
		// Only one probe at a time in half-open
		if b.concurrent < 1 {
			b.concurrent++
			return nil
		}
		b.totalRejected++
		return ErrOpen
	}

	return nil
}

// afterRequest records the result of a request
func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.concurrent--

	if err != nil {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
}

func (b *Breaker) recordFailure() {
	b.totalFailures++
	b.failures++
	b.successes = 0
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.totalSuccesses++
	b.successes++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.failures = 0
		}
	}
}

// setState changes the breaker state; callers must hold the lock
func (b *Breaker) setState(newState string) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState
	b.successes = 0

	if b.config.OnStateChange != nil {
		// Run the callback off the lock so it cannot deadlock
		b.callbackWg.Add(1)
		go func(from, to string) {
			defer b.callbackWg.Done()
			b.config.OnStateChange(from, to)
		}(oldState, newState)
	}
}

// State returns the current breaker state
func (b *Breaker) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats holds circuit breaker statistics
type Stats struct {
	State          string `json:"state"`
	TotalRequests  int64  `json:"total_requests"`
	TotalFailures  int64  `json:"total_failures"`
	TotalSuccesses int64  `json:"total_successes"`
	TotalRejected  int64  `json:"total_rejected"`
	Failures       int    `json:"current_failures"`
	Concurrent     int    `json:"concurrent"`
}

// Stats returns circuit breaker statistics
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		State:          b.state,
		TotalRequests:  b.totalRequests,
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		TotalRejected:  b.totalRejected,
		Failures:       b.failures,
		Concurrent:     b.concurrent,
	}
}

// Reset resets the breaker to the closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failures = 0
	b.successes = 0
}

// ForceOpen forces the breaker to the open state
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateOpen)
	b.lastFailureTime = time.Now()
}

// IsOpen returns true if the breaker is open
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == StateOpen
}

// Close waits for any pending state change callbacks to complete.
// Call this during graceful shutdown.
func (b *Breaker) Close() {
	b.callbackWg.Wait()
}
