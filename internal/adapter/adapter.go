// Package adapter implements the mediation adapter for the Vantage ad
// network: bidder token retrieval, bid-backed ad loading, show and
// invalidate operations, and translation of Vantage failures into the
// mediation error taxonomy.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thenexusengine/tne_medbridge/internal/bridge"
	"github.com/thenexusengine/tne_medbridge/internal/mediation"
	"github.com/thenexusengine/tne_medbridge/internal/metrics"
	"github.com/thenexusengine/tne_medbridge/internal/partner"
	"github.com/thenexusengine/tne_medbridge/pkg/breaker"
	"github.com/thenexusengine/tne_medbridge/pkg/logger"
)

// tokenCacheKey is the cache key for the shared bidder token
const tokenCacheKey = "vantage:bidder_token"

// TokenCache caches bidder tokens between fetches. The found flag
// distinguishes a cache miss from a cached empty token.
type TokenCache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// PlacementSource supplies the placement allowlist, typically from the
// placements table
type PlacementSource interface {
	AllowedIDs(ctx context.Context) ([]string, error)
}

// partnerAd is the lifecycle surface shared by every Vantage ad object
type partnerAd interface {
	LoadWithBid(ctx context.Context, bidPayload string, l *partner.Listener)
	Show() error
	Destroy()
}

// handleState is the adapter-side bookkeeping for one live ad handle
type handleState struct {
	ad    partnerAd
	relay *bridge.Relay
}

// Adapter is the mediation-facing facade. One Adapter serves many
// concurrent loads; each loaded ad gets its own handle and relay.
type Adapter struct {
	cfg     *Config
	client  *partner.Client
	runtime *runtimeConfig
	log     zerolog.Logger

	cache      TokenCache
	placements PlacementSource
	metrics    *metrics.Metrics

	mu      sync.Mutex
	handles map[*mediation.AdHandle]*handleState
}

// New creates an adapter over an initialized-or-not Vantage client.
// Optional collaborators (cache, placement source, metrics) attach via
// the setters before Initialize.
func New(client *partner.Client, cfg *Config) *Adapter {
	cfg = validateConfig(cfg)
	return &Adapter{
		cfg:     cfg,
		client:  client,
		runtime: newRuntimeConfig(cfg.TestMode, cfg.PlacementAllowlist),
		log:     logger.Adapter(),
		handles: make(map[*mediation.AdHandle]*handleState),
	}
}

// SetTokenCache attaches a bidder token cache
func (a *Adapter) SetTokenCache(c TokenCache) {
	a.cache = c
}

// SetPlacementSource attaches a placement allowlist source
func (a *Adapter) SetPlacementSource(p PlacementSource) {
	a.placements = p
}

// SetMetrics attaches Prometheus metrics
func (a *Adapter) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Initialize sets up the Vantage client with the current runtime flags
// and primes the placement allowlist when a source is attached. Safe to
// call more than once.
func (a *Adapter) Initialize(ctx context.Context) error {
	testMode := a.runtime.testModeEnabled()
	if err := a.client.Initialize(ctx, partner.Settings{TestMode: testMode}); err != nil {
		return translatePartnerFailure(err)
	}

	if a.placements != nil {
		if err := a.RefreshAllowlist(ctx); err != nil {
			// Startup proceeds on the configured allowlist; the next
			// refresh can still repair it
			a.log.Warn().Err(err).Msg("placement allowlist refresh failed")
		}
	}

	if a.metrics != nil {
		a.metrics.SetTestMode(testMode)
	}
	a.log.Info().Bool("test_mode", testMode).Msg("adapter initialized")
	return nil
}

// SetConsent forwards regulatory consent signals to Vantage. Takes
// effect on the next partner call.
func (a *Adapter) SetConsent(signals mediation.ConsentSignals) {
	a.client.SetConsent(signals.GDPRConsent, signals.USPrivacy, signals.MixedAudience)
	a.log.Debug().
		Bool("gdpr", signals.GDPRConsent != "").
		Bool("us_privacy", signals.USPrivacy != "").
		Bool("mixed_audience", signals.MixedAudience).
		Msg("consent updated")
}

// SetTestMode flips partner test mode; applies to the next load
func (a *Adapter) SetTestMode(enabled bool) {
	a.runtime.setTestMode(enabled)
	a.client.SetTestMode(enabled)
	if a.metrics != nil {
		a.metrics.SetTestMode(enabled)
	}
}

// SetPlacementAllowlist replaces the placement allowlist. An empty list
// allows every placement.
func (a *Adapter) SetPlacementAllowlist(placements []string) {
	a.runtime.setAllowlist(placements)
}

// RefreshAllowlist reloads the allowlist from the placement source
func (a *Adapter) RefreshAllowlist(ctx context.Context) error {
	if a.placements == nil {
		return nil
	}
	ids, err := a.placements.AllowedIDs(ctx)
	if err != nil {
		return fmt.Errorf("load placement allowlist: %w", err)
	}
	a.runtime.setAllowlist(ids)
	a.log.Debug().Int("placements", len(ids)).Msg("placement allowlist refreshed")
	return nil
}

// BidderToken returns the token the mediation auction needs to solicit
// Vantage bids. The network fetch runs on its own goroutine so a caller
// abandoning the wait never blocks on partner I/O. An empty token with a
// nil error is a valid outcome.
func (a *Adapter) BidderToken(ctx context.Context) (string, error) {
	start := time.Now()

	if a.cache != nil {
		token, found, err := a.cache.Get(ctx, tokenCacheKey)
		if err != nil {
			a.log.Warn().Err(err).Msg("token cache read failed")
		} else if found {
			a.recordToken("ok", "cache", start)
			return token, nil
		}
	}

	tctx, cancel := context.WithTimeout(ctx, a.cfg.TokenTimeout)
	defer cancel()

	p := bridge.NewPending[string]()
	go func() {
		token, err := a.client.BidderToken(tctx)
		if err != nil {
			p.Fail(err)
			return
		}
		p.Resolve(token)
	}()

	token, err := p.Await(tctx)
	if err != nil {
		a.recordToken("error", "network", start)
		return "", translatePartnerFailure(err)
	}

	if a.cache != nil && token != "" {
		if err := a.cache.SetTTL(ctx, tokenCacheKey, token, a.cfg.TokenTTL); err != nil {
			a.log.Warn().Err(err).Msg("token cache write failed")
		}
	}
	a.recordToken("ok", "network", start)
	return token, nil
}

// Load loads one ad for the given bid and returns its handle. Exactly
// one outcome per call: the handle on success, a classified error
// otherwise. Display events fire on the listener as Vantage delivers
// them.
func (a *Adapter) Load(ctx context.Context, req mediation.AdRequest, events mediation.EventListener) (*mediation.AdHandle, error) {
	start := time.Now()
	log := a.log.With().
		Str("placement_id", req.PlacementID).
		Str("format", string(req.Format)).
		Logger()

	if !req.Format.Valid() {
		a.recordLoad(req.Format, "unsupported", start)
		return nil, mediation.NewAdError(mediation.ErrorCodeUnsupportedFormat,
			fmt.Sprintf("unsupported ad format %q", string(req.Format)))
	}
	if !a.client.Initialized() {
		a.recordLoad(req.Format, "error", start)
		return nil, mediation.NewAdError(mediation.ErrorCodeInitFailure, "adapter not initialized")
	}
	if !a.runtime.allowed(req.PlacementID) {
		if a.metrics != nil {
			a.metrics.RecordAllowlistRejection()
		}
		a.recordLoad(req.Format, "rejected", start)
		log.Debug().Msg("placement rejected by allowlist")
		return nil, mediation.NewAdError(mediation.ErrorCodeNoFill,
			fmt.Sprintf("placement %s is not allowed", req.PlacementID))
	}

	// Runtime test-mode changes apply to the next load, never retroactively
	a.client.SetTestMode(a.runtime.testModeEnabled())

	caps, _ := bridge.CapsFor(req.Format)
	relay := bridge.NewRelay(caps, events, a.translate)
	if a.metrics != nil {
		relay.OnLate(a.metrics.RecordLateCallback)
	}

	lctx, cancel := context.WithTimeout(ctx, a.cfg.LoadTimeout)
	defer cancel()

	ad := a.newAd(req)
	ad.LoadWithBid(lctx, req.BidPayload, relay.Listener())

	if err := relay.AwaitLoad(lctx); err != nil {
		ad.Destroy()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = mediation.WrapAdError(mediation.ErrorCodeTimeout, "ad load timed out", err)
		}
		a.recordLoad(req.Format, "error", start)
		log.Debug().Err(err).Msg("ad load failed")
		return nil, err
	}

	handle := &mediation.AdHandle{
		Ad:      ad,
		Request: req,
		Details: map[string]string{},
	}
	a.mu.Lock()
	a.handles[handle] = &handleState{ad: ad, relay: relay}
	a.mu.Unlock()

	a.recordLoad(req.Format, "ok", start)
	log.Debug().Dur("duration", time.Since(start)).Msg("ad loaded")
	return handle, nil
}

// Show displays a loaded ad. For formats with a show confirmation event
// it blocks until the confirmation arrives or the show timeout expires;
// other formats succeed at call time.
func (a *Adapter) Show(ctx context.Context, handle *mediation.AdHandle) error {
	st := a.lookup(handle)
	if st == nil {
		a.recordShow(formatOf(handle), "not_found")
		return mediation.NewAdError(mediation.ErrorCodeAdNotFound, "unknown ad handle")
	}
	format := handle.Request.Format
	caps, _ := bridge.CapsFor(format)

	pending, err := st.relay.BeginShow()
	if err != nil {
		a.recordShow(format, "conflict")
		return err
	}

	if err := st.ad.Show(); err != nil {
		st.relay.EndShow()
		a.recordShow(format, "error")
		return translatePartnerFailure(err)
	}

	sctx, cancel := context.WithTimeout(ctx, a.cfg.ShowTimeout)
	defer cancel()
	if _, err := pending.Await(sctx); err != nil {
		// Unwedge the relay so the caller can retry; a confirmation
		// arriving later is dropped as a late callback
		st.relay.EndShow()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = mediation.WrapAdError(mediation.ErrorCodeTimeout, "show confirmation timed out", err)
		}
		a.recordShow(format, "error")
		return err
	}

	if !caps.Dismisses {
		st.relay.EndShow()
	}
	a.recordShow(format, "ok")
	return nil
}

// Invalidate releases a loaded ad. The handle stops being valid on
// success. A handle whose ad object does not match its format is
// rejected without touching the ad.
func (a *Adapter) Invalidate(handle *mediation.AdHandle) error {
	if handle == nil {
		a.recordInvalidate("", "not_found")
		return mediation.NewAdError(mediation.ErrorCodeAdNotFound, "nil ad handle")
	}
	format := handle.Request.Format
	if !matchesFormat(format, handle.Ad) {
		a.recordInvalidate(format, "wrong_type")
		return mediation.NewAdError(mediation.ErrorCodeWrongResource,
			fmt.Sprintf("ad object is %T, not a %s ad", handle.Ad, string(format)))
	}

	a.mu.Lock()
	st, ok := a.handles[handle]
	if ok {
		delete(a.handles, handle)
	}
	a.mu.Unlock()
	if !ok {
		a.recordInvalidate(format, "not_found")
		return mediation.NewAdError(mediation.ErrorCodeAdNotFound, "unknown ad handle")
	}

	st.ad.Destroy()
	a.recordInvalidate(format, "ok")
	return nil
}

// Handles reports the number of live ad handles
func (a *Adapter) Handles() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

// Close destroys every live ad. The adapter must not be used afterwards.
func (a *Adapter) Close() {
	a.mu.Lock()
	handles := a.handles
	a.handles = make(map[*mediation.AdHandle]*handleState)
	a.mu.Unlock()

	for _, st := range handles {
		st.ad.Destroy()
	}
}

// newAd constructs the partner ad object for a request. Banner requests
// select their size bucket here; the other formats are full-screen.
func (a *Adapter) newAd(req mediation.AdRequest) partnerAd {
	switch req.Format {
	case mediation.FormatInterstitial:
		return a.client.Interstitial(req.PartnerPlacementID)
	case mediation.FormatRewarded:
		return a.client.Rewarded(req.PartnerPlacementID)
	case mediation.FormatRewardedInterstitial:
		return a.client.RewardedInterstitial(req.PartnerPlacementID)
	default:
		return a.client.Banner(req.PartnerPlacementID, SelectBannerSize(req.BannerHeight))
	}
}

// translate is the relay's error translator; it also counts partner
// errors by code
func (a *Adapter) translate(code partner.Code, message string) error {
	if a.metrics != nil {
		a.metrics.RecordPartnerError(int(code))
	}
	return TranslateError(code, message)
}

// lookup resolves a handle to its live state, nil when unknown
func (a *Adapter) lookup(handle *mediation.AdHandle) *handleState {
	if handle == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles[handle]
}

func (a *Adapter) recordLoad(format mediation.AdFormat, status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordLoad(string(format), status, time.Since(start))
	}
}

func (a *Adapter) recordShow(format mediation.AdFormat, status string) {
	if a.metrics != nil {
		a.metrics.RecordShow(string(format), status)
	}
}

func (a *Adapter) recordInvalidate(format mediation.AdFormat, status string) {
	if a.metrics != nil {
		a.metrics.RecordInvalidate(string(format), status)
	}
}

func (a *Adapter) recordToken(status, source string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordTokenFetch(status, source, time.Since(start))
	}
}

// matchesFormat verifies the handle's ad object has the concrete type
// its format implies
func matchesFormat(format mediation.AdFormat, ad any) bool {
	switch format {
	case mediation.FormatBanner:
		_, ok := ad.(*partner.BannerAd)
		return ok
	case mediation.FormatInterstitial:
		_, ok := ad.(*partner.InterstitialAd)
		return ok
	case mediation.FormatRewarded:
		_, ok := ad.(*partner.RewardedAd)
		return ok
	case mediation.FormatRewardedInterstitial:
		_, ok := ad.(*partner.RewardedInterstitialAd)
		return ok
	}
	return false
}

// formatOf tolerates nil handles when labeling metrics
func formatOf(handle *mediation.AdHandle) mediation.AdFormat {
	if handle == nil {
		return ""
	}
	return handle.Request.Format
}

// translatePartnerFailure classifies a synchronous partner failure:
// structured call errors translate by code, breaker rejections count as
// rate limiting, context expiry as timeout.
func translatePartnerFailure(err error) error {
	var ae *mediation.AdError
	if errors.As(err, &ae) {
		return err
	}
	var ce *partner.CallError
	if errors.As(err, &ce) {
		return TranslateError(ce.Code, ce.Message)
	}
	switch {
	case errors.Is(err, partner.ErrNotInitialized):
		return mediation.WrapAdError(mediation.ErrorCodeInitFailure, "adapter not initialized", err)
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, breaker.ErrTooManyConcurrent):
		return mediation.WrapAdError(mediation.ErrorCodeRateLimited, "partner calls suspended", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return mediation.WrapAdError(mediation.ErrorCodeTimeout, "partner call timed out", err)
	}
	return mediation.WrapAdError(mediation.ErrorCodePartner, "partner call failed", err)
}
