// Package mediation defines the vocabulary shared between the mediation
// layer and the adapter: ad formats, load requests, ad handles, event
// listeners, and the error taxonomy.
package mediation

// AdFormat identifies a supported ad format
type AdFormat string

const (
	FormatBanner               AdFormat = "banner"
	FormatInterstitial         AdFormat = "interstitial"
	FormatRewarded             AdFormat = "rewarded"
	FormatRewardedInterstitial AdFormat = "rewarded_interstitial"
)

// Valid reports whether the format is one the adapter supports
func (f AdFormat) Valid() bool {
	switch f {
	case FormatBanner, FormatInterstitial, FormatRewarded, FormatRewardedInterstitial:
		return true
	}
	return false
}

// Formats lists all supported ad formats
func Formats() []AdFormat {
	return []AdFormat{
		FormatBanner,
		FormatInterstitial,
		FormatRewarded,
		FormatRewardedInterstitial,
	}
}

// AdRequest describes a single ad load. It is immutable once issued and
// owned by the caller for the duration of one load call.
type AdRequest struct {
	// PlacementID is the mediation-side placement identifier
	PlacementID string

	// PartnerPlacementID is the partner-side placement identifier
	PartnerPlacementID string

	// Format is the requested ad format
	Format AdFormat

	// BannerHeight is the requested banner height in dp.
	// Nil when the caller did not specify a size. Ignored for
	// non-banner formats.
	BannerHeight *int

	// BidPayload is the opaque auction token passed through to the
	// partner to render the winning creative
	BidPayload string
}

// AdHandle wraps a loaded partner ad object together with its originating
// request. Ownership transfers to the caller after a successful load; the
// handle must be passed back to Show and Invalidate.
type AdHandle struct {
	// Ad is the opaque partner ad object
	Ad any

	// Request is the load request that produced this ad
	Request AdRequest

	// Details carries extra key/value pairs for the mediation layer.
	// Always non-nil, empty on a fresh load.
	Details map[string]string
}

// EventListener receives fire-and-forget ad events. Events are forwarded
// as the partner delivers them, independent of whether the load or show
// operation has resolved yet.
type EventListener interface {
	// OnClick is called when the user clicks the ad
	OnClick()

	// OnImpression is called when the ad is displayed
	OnImpression()

	// OnDismiss is called when a full-screen ad is closed
	OnDismiss()

	// OnReward is called when the user earns a reward
	OnReward(amount int, currency string)
}

// NopListener is an EventListener that ignores every event
type NopListener struct{}

func (NopListener) OnClick()             {}
func (NopListener) OnImpression()        {}
func (NopListener) OnDismiss()           {}
func (NopListener) OnReward(int, string) {}

// ConsentSignals carries regulatory privacy signals to propagate to the
// partner. Empty fields mean "no signal".
type ConsentSignals struct {
	// GDPRConsent is the IAB TCF consent string
	GDPRConsent string

	// USPrivacy is the IAB CCPA/US privacy string
	USPrivacy string

	// MixedAudience marks the request as subject to children's privacy
	// rules (COPPA or equivalent)
	MixedAudience bool
}
