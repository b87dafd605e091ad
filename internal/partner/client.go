package partner

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thenexusengine/tne_medbridge/pkg/breaker"
	"github.com/thenexusengine/tne_medbridge/pkg/logger"
)

// maxResponseSize limits partner response size to prevent OOM
const maxResponseSize = 1024 * 1024 // 1MB

// defaultTimeout is the per-call deadline when the config leaves it unset
const defaultTimeout = 10 * time.Second

// ErrNotInitialized is returned when the client is used before Initialize
var ErrNotInitialized = errors.New("vantage client not initialized")

// ClientConfig holds Vantage client configuration
type ClientConfig struct {
	// Endpoint is the base URL of the Vantage ad service
	Endpoint string

	// AppID identifies the host application to Vantage
	AppID string

	// Timeout is the per-call HTTP deadline (default 10s)
	Timeout time.Duration

	// Breaker configures the circuit breaker guarding partner calls.
	// Nil selects breaker defaults.
	Breaker *breaker.Config
}

// Client is the Go binding to the Vantage ad network. It owns the global
// settings and constructs the per-format ad objects.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	brk  *breaker.Breaker

	mu          sync.RWMutex
	settings    Settings
	initialized bool
}

// NewClient creates a Vantage client with pooled connections
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("vantage endpoint is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSClientConfig: &tls.Config{
			ClientSessionCache: tls.NewLRUClientSessionCache(100),
			MinVersion:         tls.VersionTLS12,
		},

		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		brk: breaker.New(cfg.Breaker),
	}, nil
}

// Initialize applies the global settings and marks the client ready.
// Safe to call more than once; later calls replace the settings.
func (c *Client) Initialize(ctx context.Context, s Settings) error {
	if c.cfg.AppID == "" {
		return &CallError{Code: CodeNotInitialized, Message: "app id is empty"}
	}

	c.mu.Lock()
	c.settings = s
	c.initialized = true
	c.mu.Unlock()

	log := logger.Partner()
	log.Info().
		Bool("test_mode", s.TestMode).
		Bool("mixed_audience", s.MixedAudience).
		Strs("data_processing_options", s.DataProcessingOptions).
		Msg("Vantage client initialized")
	return nil
}

// Initialized reports whether Initialize has completed
func (c *Client) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// SetTestMode flips the test-mode flag; takes effect on the next load
func (c *Client) SetTestMode(enabled bool) {
	c.mu.Lock()
	c.settings.TestMode = enabled
	c.mu.Unlock()
}

// SetConsent updates the consent-related settings; takes effect on the
// next partner call
func (c *Client) SetConsent(gdprConsent, usPrivacy string, mixedAudience bool) {
	c.mu.Lock()
	c.settings.GDPRConsent = gdprConsent
	c.settings.USPrivacy = usPrivacy
	c.settings.MixedAudience = mixedAudience
	c.mu.Unlock()
}

// SetDataProcessingOptions updates the limited-data-use flags
func (c *Client) SetDataProcessingOptions(options []string, country, state int) {
	c.mu.Lock()
	c.settings.DataProcessingOptions = options
	c.settings.DataProcessingCountry = country
	c.settings.DataProcessingState = state
	c.mu.Unlock()
}

// snapshotSettings returns a copy of the current settings
func (c *Client) snapshotSettings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// BreakerStats returns circuit breaker statistics for monitoring
func (c *Client) BreakerStats() breaker.Stats {
	return c.brk.Stats()
}

// Close releases background resources
func (c *Client) Close() {
	c.brk.Close()
	c.http.CloseIdleConnections()
}

// Banner creates a banner ad object for the given size bucket
func (c *Client) Banner(placementID string, size BannerSize) *BannerAd {
	s := size
	return &BannerAd{adObject{client: c, placement: placementID, format: "banner", size: &s}}
}

// Interstitial creates a full-screen interstitial ad object
func (c *Client) Interstitial(placementID string) *InterstitialAd {
	return &InterstitialAd{adObject{client: c, placement: placementID, format: "interstitial"}}
}

// Rewarded creates a rewarded video ad object
func (c *Client) Rewarded(placementID string) *RewardedAd {
	return &RewardedAd{adObject{client: c, placement: placementID, format: "rewarded"}}
}

// RewardedInterstitial creates a rewarded interstitial ad object
func (c *Client) RewardedInterstitial(placementID string) *RewardedInterstitialAd {
	return &RewardedInterstitialAd{adObject{client: c, placement: placementID, format: "rewarded_interstitial"}}
}

// TokenResult is the outcome of a bidder token fetch. An empty Token with
// a nil error is a valid outcome distinct from a failed fetch.
type TokenResult struct {
	Token string `json:"token"`
}

// BidderToken fetches the token the mediation auction needs to solicit
// Vantage bids. This blocks on network I/O; callers that must not block
// run it off their goroutine.
func (c *Client) BidderToken(ctx context.Context) (string, error) {
	if !c.Initialized() {
		return "", ErrNotInitialized
	}

	var token string
	err := c.brk.Execute(func() error {
		resp, err := c.do(ctx, http.MethodGet, c.cfg.Endpoint+"/v1/bidder-token", nil)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &CallError{Code: codeForStatus(resp.StatusCode), Message: fmt.Sprintf("token fetch failed with status %d", resp.StatusCode)}
		}
		var tr TokenResult
		if err := json.Unmarshal(resp.Body, &tr); err != nil {
			return &CallError{Code: CodeInternalError, Message: "malformed token response"}
		}
		token = tr.Token
		return nil
	})
	return token, err
}

// renderRequest is the body POSTed to the render endpoint
type renderRequest struct {
	PlacementID string      `json:"placement_id"`
	Format      string      `json:"format"`
	Size        *BannerSize `json:"height,omitempty"`
	BidPayload  string      `json:"bid_payload"`
}

// renderWire is the full wire payload including the settings snapshot
type renderWire struct {
	renderRequest
	AppID                 string   `json:"app_id"`
	TestMode              bool     `json:"test_mode"`
	MixedAudience         bool     `json:"mixed_audience"`
	DataProcessingOptions []string `json:"data_processing_options,omitempty"`
	DataProcessingCountry int      `json:"data_processing_country,omitempty"`
	DataProcessingState   int      `json:"data_processing_state,omitempty"`
	GDPRConsent           string   `json:"gdpr_consent,omitempty"`
	USPrivacy             string   `json:"us_privacy,omitempty"`
}

// renderResponse is the render endpoint's success body
type renderResponse struct {
	Markup string `json:"markup"`
}

// renderError is the render endpoint's error body
type renderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// render requests the winning creative for a bid payload. On failure it
// returns the Vantage code describing why.
func (c *Client) render(ctx context.Context, req renderRequest) (string, Code, error) {
	if !c.Initialized() {
		return "", CodeNotInitialized, ErrNotInitialized
	}

	s := c.snapshotSettings()
	wire := renderWire{
		renderRequest:         req,
		AppID:                 c.cfg.AppID,
		TestMode:              s.TestMode,
		MixedAudience:         s.MixedAudience,
		DataProcessingOptions: s.DataProcessingOptions,
		DataProcessingCountry: s.DataProcessingCountry,
		DataProcessingState:   s.DataProcessingState,
		GDPRConsent:           s.GDPRConsent,
		USPrivacy:             s.USPrivacy,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return "", CodeInternalError, fmt.Errorf("marshal render request: %w", err)
	}

	var markup string
	var failCode Code
	execErr := c.brk.Execute(func() error {
		resp, err := c.do(ctx, http.MethodPost, c.cfg.Endpoint+"/v1/ads/render", body)
		if err != nil {
			failCode = codeForTransportError(err)
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var rr renderResponse
			if err := json.Unmarshal(resp.Body, &rr); err != nil {
				failCode = CodeInternalError
				return fmt.Errorf("malformed render response: %w", err)
			}
			markup = rr.Markup
			return nil

		case resp.StatusCode == http.StatusNoContent:
			// No fill is a healthy partner interaction; it must not
			// count against the circuit breaker
			failCode = CodeNoFill
			return nil

		default:
			// Prefer the structured error body when Vantage sends one
			var re renderError
			if json.Unmarshal(resp.Body, &re) == nil && re.Code != 0 {
				failCode = Code(re.Code)
				return fmt.Errorf("render rejected: %s", re.Message)
			}
			failCode = codeForStatus(resp.StatusCode)
			return fmt.Errorf("render failed with status %d", resp.StatusCode)
		}
	})
	if execErr != nil {
		if failCode == 0 {
			// Breaker rejection, no HTTP attempt was made
			failCode = CodeLoadTooFrequently
		}
		return "", failCode, execErr
	}
	if failCode == CodeNoFill {
		return "", CodeNoFill, fmt.Errorf("no fill for placement %s", req.PlacementID)
	}
	return markup, 0, nil
}

// codeForStatus maps an HTTP status to the closest Vantage code
func codeForStatus(status int) Code {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeRequestTimeout
	case status == http.StatusTooManyRequests:
		return CodeLoadTooFrequently
	case status == http.StatusBadRequest:
		return CodeBidPayloadError
	case status >= 500:
		return CodeServerError
	}
	return CodeInternalError
}

// codeForTransportError maps a transport failure to a Vantage code
func codeForTransportError(err error) Code {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeRequestTimeout
	}
	return CodeNetworkError
}

// responseData is a fully-read partner HTTP response
type responseData struct {
	StatusCode int
	Body       []byte
}

// do executes one partner HTTP call with the context-aware body read and
// size cap used for all outbound traffic
func (c *Client) do(ctx context.Context, method, url string, body []byte) (*responseData, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Vantage-App", c.cfg.AppID)

	resp, err := c.http.Do(httpReq) //nolint:bodyclose
	if err != nil {
		return nil, err
	}

	// Single goroutine for the entire read so cancellation cannot leak it
	type readResult struct {
		data []byte
		err  error
	}
	readCh := make(chan readResult, 1)

	go func() {
		defer resp.Body.Close()
		limitedReader := io.LimitReader(resp.Body, maxResponseSize+1) // +1 to detect overflow
		data, err := io.ReadAll(limitedReader)
		readCh <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		resp.Body.Close()
		result := <-readCh
		if result.err != nil && !errors.Is(result.err, io.EOF) {
			log := logger.Partner()
			log.Debug().
				Err(result.err).
				Str("url", url).
				Msg("read error during context cancellation (masked by timeout)")
		}
		return nil, ctx.Err()
	case result := <-readCh:
		if result.err != nil {
			return nil, result.err
		}
		if len(result.data) > maxResponseSize {
			return nil, fmt.Errorf("response too large: exceeded %d bytes", maxResponseSize)
		}
		return &responseData{
			StatusCode: resp.StatusCode,
			Body:       result.data,
		}, nil
	}
}
