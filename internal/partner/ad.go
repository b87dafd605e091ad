package partner

import (
	"context"
	"fmt"
	"sync"
)

// Listener receives callbacks from one ad object. Nil fields are skipped.
// Terminal callbacks (OnLoaded, OnError) may both fire for the same ad in
// edge cases; consumers must tolerate the second one.
type Listener struct {
	OnLoaded        func()
	OnError         func(code Code, message string)
	OnShowConfirmed func()
	OnClick         func()
	OnImpression    func()
	OnDismiss       func()
	OnReward        func(amount int, currency string)
}

// CallError is a synchronous partner failure carrying a Vantage code
type CallError struct {
	Code    Code
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("vantage: %s (code %d)", e.Message, int(e.Code))
}

// adObject is the lifecycle shared by every ad format: load-with-bid
// against the render endpoint, show, destroy, and callback dispatch.
type adObject struct {
	client    *Client
	placement string
	format    string
	size      *BannerSize // banner only

	mu        sync.Mutex
	listener  *Listener
	loaded    bool
	showing   bool
	destroyed bool
	creative  string
}

// PlacementID returns the partner-side placement identifier
func (a *adObject) PlacementID() string {
	return a.placement
}

// Creative returns the rendered markup after a successful load
func (a *adObject) Creative() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creative
}

// Loaded reports whether the ad has loaded and is ready to show
func (a *adObject) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded && !a.destroyed
}

// LoadWithBid starts an asynchronous load of the winning creative for the
// given bid payload. Exactly one of OnLoaded or OnError fires per call,
// on a background goroutine.
func (a *adObject) LoadWithBid(ctx context.Context, bidPayload string, l *Listener) {
	a.mu.Lock()
	a.listener = l
	destroyed := a.destroyed
	a.mu.Unlock()

	if destroyed {
		a.fireError(CodeInternalError, "ad object already destroyed")
		return
	}

	go func() {
		creative, code, err := a.client.render(ctx, renderRequest{
			PlacementID: a.placement,
			Format:      a.format,
			Size:        a.size,
			BidPayload:  bidPayload,
		})
		if err != nil {
			a.fireError(code, err.Error())
			return
		}

		a.mu.Lock()
		a.creative = creative
		a.loaded = true
		a.mu.Unlock()

		a.fire(func(l *Listener) { safeCall(l.OnLoaded) })
	}()
}

// Show displays the ad. It fails synchronously when the ad is not loaded
// or already destroyed; display events arrive on the listener afterwards.
func (a *adObject) Show() error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return &CallError{Code: CodeInternalError, Message: "ad object already destroyed"}
	}
	if !a.loaded {
		a.mu.Unlock()
		return &CallError{Code: CodeAdNotLoaded, Message: "ad not loaded"}
	}
	a.showing = true
	a.mu.Unlock()

	a.fire(func(l *Listener) { safeCall(l.OnImpression) })
	return nil
}

// confirmShow fires the show confirmation event for formats that have one
func (a *adObject) confirmShow() {
	a.fire(func(l *Listener) { safeCall(l.OnShowConfirmed) })
}

// Destroy releases the partner ad object. Idempotent.
func (a *adObject) Destroy() {
	a.mu.Lock()
	a.destroyed = true
	a.loaded = false
	a.showing = false
	a.creative = ""
	a.mu.Unlock()
}

// NotifyClick reports a user click from the render host
func (a *adObject) NotifyClick() {
	a.fire(func(l *Listener) { safeCall(l.OnClick) })
}

// NotifyDismissed reports that the render host closed a full-screen ad
func (a *adObject) NotifyDismissed() {
	a.mu.Lock()
	a.showing = false
	a.mu.Unlock()
	a.fire(func(l *Listener) { safeCall(l.OnDismiss) })
}

// NotifyReward reports a completed reward from the render host
func (a *adObject) NotifyReward(amount int, currency string) {
	a.fire(func(l *Listener) {
		if l.OnReward != nil {
			l.OnReward(amount, currency)
		}
	})
}

// fire invokes fn with the current listener, if any
func (a *adObject) fire(fn func(*Listener)) {
	a.mu.Lock()
	l := a.listener
	a.mu.Unlock()
	if l != nil {
		fn(l)
	}
}

func (a *adObject) fireError(code Code, message string) {
	a.fire(func(l *Listener) {
		if l.OnError != nil {
			l.OnError(code, message)
		}
	})
}

func safeCall(fn func()) {
	if fn != nil {
		fn()
	}
}

// BannerAd is a Vantage banner ad object
type BannerAd struct {
	adObject
}

// Size returns the banner size bucket this ad was created with
func (a *BannerAd) Size() BannerSize {
	return *a.size
}

// InterstitialAd is a Vantage full-screen interstitial ad object.
// Interstitials deliver a show confirmation event.
type InterstitialAd struct {
	adObject
}

// Show displays the interstitial and fires the show confirmation
func (a *InterstitialAd) Show() error {
	if err := a.adObject.Show(); err != nil {
		return err
	}
	a.confirmShow()
	return nil
}

// RewardedAd is a Vantage rewarded video ad object. Rewarded ads have no
// show confirmation event; display success is assumed at call time.
type RewardedAd struct {
	adObject
}

// RewardedInterstitialAd is a Vantage rewarded interstitial ad object.
// Like rewarded video, it has no show confirmation event.
type RewardedInterstitialAd struct {
	adObject
}
