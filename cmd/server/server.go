package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thenexusengine/tne_medbridge/internal/adapter"
	mbconfig "github.com/thenexusengine/tne_medbridge/internal/config"
	"github.com/thenexusengine/tne_medbridge/internal/mediation"
	"github.com/thenexusengine/tne_medbridge/internal/metrics"
	"github.com/thenexusengine/tne_medbridge/internal/partner"
	"github.com/thenexusengine/tne_medbridge/internal/storage"
	"github.com/thenexusengine/tne_medbridge/pkg/breaker"
	"github.com/thenexusengine/tne_medbridge/pkg/logger"
	"github.com/thenexusengine/tne_medbridge/pkg/redis"
)

// Server represents the mediation adapter service
type Server struct {
	config      *ServerConfig
	httpServer  *http.Server
	metrics     *metrics.Metrics
	adapter     *adapter.Adapter
	partner     *partner.Client
	placements  *storage.PlacementStore
	redisClient *redis.Client

	mu      sync.Mutex
	handles map[string]*mediation.AdHandle

	refreshStop chan struct{}
	refreshDone chan struct{}
}

// NewServer creates a new adapter service instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	s := &Server{
		config:  cfg,
		handles: make(map[string]*mediation.AdHandle),
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}

	return s, nil
}

// initialize sets up all server components
func (s *Server) initialize() error {
	log := logger.Log

	log.Info().
		Str("port", s.config.Port).
		Str("vantage_endpoint", s.config.VantageEndpoint).
		Bool("test_mode", s.config.TestMode).
		Msg("Initializing The Nexus Engine mediation adapter")

	// Initialize Prometheus metrics
	s.metrics = metrics.NewMetrics("medbridge")
	log.Info().Msg("Prometheus metrics enabled")

	// Initialize database if configured
	if err := s.initDatabase(); err != nil {
		// Database failures are non-fatal, log and continue
		log.Warn().Err(err).Msg("Database initialization failed, continuing with reduced functionality")
	}

	// Initialize Redis if configured
	if err := s.initRedis(); err != nil {
		// Redis failures are non-fatal, log and continue
		log.Warn().Err(err).Msg("Redis initialization failed, continuing with reduced functionality")
	}

	// Initialize the Vantage client and the adapter over it
	if err := s.initAdapter(); err != nil {
		return err
	}

	// Keep the placement allowlist fresh
	s.startAllowlistRefresh()

	// Initialize handlers and build HTTP server
	s.initHandlers()

	return nil
}

// initDatabase initializes database connections
func (s *Server) initDatabase() error {
	log := logger.Log

	if s.config.DatabaseConfig == nil {
		log.Info().Msg("DB_HOST not set, placement allowlist disabled")
		return nil
	}

	dbCfg := s.config.DatabaseConfig
	dbConn, err := storage.NewDBConnection(
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, placement allowlist disabled")
		return err
	}

	s.placements = storage.NewPlacementStore(dbConn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	placements, err := s.placements.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load placements from database")
	} else {
		log.Info().
			Int("count", len(placements)).
			Msg("Placements loaded from PostgreSQL")
	}

	return nil
}

// initRedis initializes the Redis-backed token cache
func (s *Server) initRedis() error {
	log := logger.Log

	if s.config.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, bidder token caching disabled")
		return nil
	}

	var err error
	s.redisClient, err = redis.New(s.config.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis")
		return err
	}

	log.Info().Msg("Redis client initialized")
	return nil
}

// initAdapter creates the Vantage client and the adapter facade
func (s *Server) initAdapter() error {
	log := logger.Log

	brkCfg := breaker.DefaultConfig()
	brkCfg.OnStateChange = func(from, to string) {
		s.metrics.SetBreakerOpen(to == breaker.StateOpen)
		plog := logger.Partner()
		plog.Warn().
			Str("from", from).
			Str("to", to).
			Msg("Vantage circuit breaker state changed")
	}

	clientCfg := s.config.ToClientConfig()
	clientCfg.Breaker = brkCfg

	client, err := partner.NewClient(clientCfg)
	if err != nil {
		return err
	}
	s.partner = client

	s.adapter = adapter.New(client, s.config.ToAdapterConfig())
	s.adapter.SetMetrics(s.metrics)
	if s.redisClient != nil {
		s.adapter.SetTokenCache(s.redisClient)
	}
	if s.placements != nil {
		s.adapter.SetPlacementSource(s.placements)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.adapter.Initialize(ctx); err != nil {
		return err
	}

	log.Info().Msg("Adapter initialized")
	return nil
}

// startAllowlistRefresh reloads the placement allowlist periodically
func (s *Server) startAllowlistRefresh() {
	s.refreshStop = make(chan struct{})
	s.refreshDone = make(chan struct{})

	if s.placements == nil || s.config.AllowlistRefresh <= 0 {
		close(s.refreshDone)
		return
	}

	go func() {
		defer close(s.refreshDone)
		ticker := time.NewTicker(s.config.AllowlistRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.adapter.RefreshAllowlist(ctx); err != nil {
					logger.Log.Warn().Err(err).Msg("Placement allowlist refresh failed")
				}
				cancel()
			case <-s.refreshStop:
				return
			}
		}
	}()
}

// initHandlers initializes HTTP handlers and builds the handler chain
func (s *Server) initHandlers() {
	mux := http.NewServeMux()

	// Ad lifecycle endpoints
	mux.HandleFunc("POST /v1/load", s.loadHandler)
	mux.HandleFunc("POST /v1/show", s.showHandler)
	mux.HandleFunc("POST /v1/invalidate", s.invalidateHandler)
	mux.HandleFunc("POST /v1/event", s.eventHandler)

	// Auction support
	mux.HandleFunc("GET /v1/token", s.tokenHandler)
	mux.HandleFunc("POST /v1/consent", s.consentHandler)

	// Admin endpoints
	mux.HandleFunc("POST /admin/test-mode", s.testModeHandler)
	mux.HandleFunc("GET /admin/circuit-breaker", s.breakerHandler)

	mux.Handle("/health", healthHandler())
	mux.Handle("/health/ready", s.readyHandler())

	// Prometheus metrics endpoint
	mux.Handle("/metrics", s.metrics.Handler())

	// Build middleware chain: Logging -> Metrics -> Handler
	handler := http.Handler(mux)
	handler = s.metrics.Middleware(handler)
	handler = loggingMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  mbconfig.ServerReadTimeout,
		WriteTimeout: mbconfig.ServerWriteTimeout,
		IdleTimeout:  mbconfig.ServerIdleTimeout,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log := logger.Log
	log.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown performs graceful shutdown
func (s *Server) Shutdown(ctx context.Context) error {
	log := logger.Log
	log.Info().Msg("Starting graceful shutdown")

	// Stop the allowlist refresh loop
	if s.refreshStop != nil {
		close(s.refreshStop)
		<-s.refreshDone
	}

	// Shutdown HTTP server first so no new loads arrive
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	// Release live ads and the partner client
	if s.adapter != nil {
		s.adapter.Close()
	}
	if s.partner != nil {
		s.partner.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}

// registerHandle stores a loaded handle under its id
func (s *Server) registerHandle(id string, handle *mediation.AdHandle) {
	s.mu.Lock()
	s.handles[id] = handle
	s.mu.Unlock()
}

// lookupHandle resolves a handle id, nil when unknown
func (s *Server) lookupHandle(id string) *mediation.AdHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

// removeHandle drops a handle id after a successful invalidate
func (s *Server) removeHandle(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// eventLogger forwards ad display events to the structured log
type eventLogger struct {
	log zerolog.Logger
}

func newEventLogger(handleID, placementID string) *eventLogger {
	return &eventLogger{
		log: logger.HTTP().With().
			Str("handle_id", handleID).
			Str("placement_id", placementID).
			Logger(),
	}
}

func (e *eventLogger) OnClick()      { e.log.Info().Str("event", "click").Msg("Ad event") }
func (e *eventLogger) OnImpression() { e.log.Info().Str("event", "impression").Msg("Ad event") }
func (e *eventLogger) OnDismiss()    { e.log.Info().Str("event", "dismiss").Msg("Ad event") }
func (e *eventLogger) OnReward(amount int, currency string) {
	e.log.Info().
		Str("event", "reward").
		Int("amount", amount).
		Str("currency", currency).
		Msg("Ad event")
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Generate request ID
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add request ID to response
		w.Header().Set("X-Request-ID", requestID)

		// Process request
		next.ServeHTTP(wrapped, r)

		// Log request completion
		duration := time.Since(start)

		event := logger.Log.Info()
		if wrapped.statusCode >= 400 {
			event = logger.Log.Warn()
		}
		if wrapped.statusCode >= 500 {
			event = logger.Log.Error()
		}

		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", duration).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// healthHandler returns a simple liveness check
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode health response")
		}
	})
}

// readyHandler returns a readiness check with dependency verification
func (s *Server) readyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]interface{})
		allHealthy := true

		// Check Redis if available
		if s.redisClient != nil {
			if err := s.redisClient.Ping(ctx); err != nil {
				checks["redis"] = map[string]interface{}{
					"status": "unhealthy",
					"error":  err.Error(),
				}
				allHealthy = false
			} else {
				checks["redis"] = map[string]interface{}{
					"status": "healthy",
				}
			}
		} else {
			checks["redis"] = map[string]interface{}{
				"status": "disabled",
			}
		}

		// The partner client must be initialized before ads can load
		if s.partner.Initialized() {
			checks["vantage"] = map[string]interface{}{
				"status":  "healthy",
				"breaker": s.partner.BreakerStats(),
			}
		} else {
			checks["vantage"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  "not initialized",
			}
			allHealthy = false
		}

		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"ready":     allHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode readiness response")
		}
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// generateHandleID creates a unique ad handle ID
func generateHandleID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
