package partner

// Settings are the process-wide Vantage settings applied at Initialize
// and updated by consent propagation. They take effect on the next load,
// never retroactively.
type Settings struct {
	// TestMode requests test creatives instead of live demand
	TestMode bool

	// MixedAudience marks all traffic as subject to children's privacy
	// rules
	MixedAudience bool

	// DataProcessingOptions are the limited-data-use flags, e.g. ["LDU"].
	// An empty slice explicitly disables limited data use.
	DataProcessingOptions []string

	// DataProcessingCountry and DataProcessingState scope the
	// data-processing options geographically (0 means "determine from
	// request")
	DataProcessingCountry int
	DataProcessingState   int

	// GDPRConsent is the IAB TCF consent string to attach to requests
	GDPRConsent string

	// USPrivacy is the IAB CCPA/US privacy string to attach to requests
	USPrivacy string
}

// BannerSize is one of Vantage's fixed banner size buckets. Vantage
// serves full-width creatives, so buckets are keyed by height only.
type BannerSize int

const (
	// BannerHeight50 is the smallest bucket (full width x 50dp)
	BannerHeight50 BannerSize = 50
	// BannerHeight90 is the medium bucket (full width x 90dp)
	BannerHeight90 BannerSize = 90
	// RectangleHeight250 is the largest bucket (medium rectangle, 250dp)
	RectangleHeight250 BannerSize = 250
)

// Height returns the bucket height in dp
func (s BannerSize) Height() int {
	return int(s)
}
