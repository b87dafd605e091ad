package bridge

import (
	"context"
	"sync"

	"github.com/thenexusengine/tne_medbridge/internal/mediation"
	"github.com/thenexusengine/tne_medbridge/internal/partner"
)

// Caps describes which callbacks a format's partner ad object delivers.
// One parameterized relay per format replaces per-format listener classes.
type Caps struct {
	// ShowConfirmed is true when the format fires a dedicated show
	// confirmation event. Formats without one resolve show operations
	// optimistically at call time.
	ShowConfirmed bool

	// Rewards is true when the format can deliver reward events
	Rewards bool

	// Dismisses is true when the format delivers a dismiss event
	Dismisses bool
}

// capsByFormat is the capability table for the supported formats
var capsByFormat = map[mediation.AdFormat]Caps{
	mediation.FormatBanner:               {},
	mediation.FormatInterstitial:         {ShowConfirmed: true, Dismisses: true},
	mediation.FormatRewarded:             {Rewards: true, Dismisses: true},
	mediation.FormatRewardedInterstitial: {Rewards: true, Dismisses: true},
}

// CapsFor returns the capability descriptor for a format
func CapsFor(format mediation.AdFormat) (Caps, bool) {
	caps, ok := capsByFormat[format]
	return caps, ok
}

// TranslateFunc converts a partner error code into a mediation error
type TranslateFunc func(code partner.Code, message string) error

// Relay is the per-ad listener bridging partner callbacks to the pending
// load operation, a possible pending show operation, and the caller's
// event listener. Non-terminal events are forwarded immediately,
// independent of the pending operations' state.
type Relay struct {
	caps      Caps
	events    mediation.EventListener
	translate TranslateFunc

	load *Pending[struct{}]

	mu      sync.Mutex
	show    *Pending[struct{}]
	showing bool
}

// NewRelay creates the relay for one ad lifecycle. A nil events listener
// is replaced with a no-op one.
func NewRelay(caps Caps, events mediation.EventListener, translate TranslateFunc) *Relay {
	if events == nil {
		events = mediation.NopListener{}
	}
	return &Relay{
		caps:      caps,
		events:    events,
		translate: translate,
		load:      NewPending[struct{}](),
	}
}

// OnLate registers a late-resolution hook on the load operation
func (r *Relay) OnLate(fn func()) {
	r.load.OnLate(fn)
}

// Listener returns the partner listener bound to this relay
func (r *Relay) Listener() *partner.Listener {
	return &partner.Listener{
		OnLoaded:        r.onLoaded,
		OnError:         r.onError,
		OnShowConfirmed: r.onShowConfirmed,
		OnClick:         r.events.OnClick,
		OnImpression:    r.events.OnImpression,
		OnDismiss:       r.onDismiss,
		OnReward:        r.onReward,
	}
}

// AwaitLoad blocks until the load resolves or the context ends
func (r *Relay) AwaitLoad(ctx context.Context) error {
	_, err := r.load.Await(ctx)
	return err
}

func (r *Relay) onLoaded() {
	r.load.Resolve(struct{}{})
}

// onError terminates whichever operation is pending: the load if it has
// not resolved, otherwise an in-flight show. A terminal error with
// nothing pending is a late callback and is dropped.
func (r *Relay) onError(code partner.Code, message string) {
	err := r.translate(code, message)

	if r.load.Fail(err) {
		return
	}

	r.mu.Lock()
	show := r.show
	r.mu.Unlock()
	if show != nil {
		show.Fail(err)
	}
}

func (r *Relay) onShowConfirmed() {
	r.mu.Lock()
	show := r.show
	r.mu.Unlock()
	if show != nil {
		show.Resolve(struct{}{})
	}
}

func (r *Relay) onDismiss() {
	r.mu.Lock()
	r.showing = false
	r.mu.Unlock()
	r.events.OnDismiss()
}

func (r *Relay) onReward(amount int, currency string) {
	if r.caps.Rewards {
		r.events.OnReward(amount, currency)
	}
}

// BeginShow opens a show operation. A second show before the first one
// finished is a conflict. For formats without a show confirmation the
// returned pending is already resolved (optimistic success, preserved
// from the partner's historical behavior).
func (r *Relay) BeginShow() (*Pending[struct{}], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.showing {
		return nil, mediation.NewAdError(mediation.ErrorCodeShowInProgress, "ad is already showing")
	}

	p := NewPending[struct{}]()
	// Only full-screen formats (those that dismiss) hold the showing
	// state; banners can be re-shown freely
	if r.caps.Dismisses {
		r.showing = true
	}
	r.show = p

	if !r.caps.ShowConfirmed {
		p.Resolve(struct{}{})
	}
	return p, nil
}

// EndShow closes the show operation without waiting for a dismiss event.
// Used when the show fails synchronously.
func (r *Relay) EndShow() {
	r.mu.Lock()
	r.showing = false
	r.show = nil
	r.mu.Unlock()
}
