package adapter

import "github.com/thenexusengine/tne_medbridge/internal/partner"

// SelectBannerSize maps a requested height in dp to one of Vantage's
// fixed banner size buckets. The boundaries are half-open and load
// different physical creatives, so they must not drift:
//
//	nil        -> 50dp banner
//	h < 90     -> 50dp banner
//	90..249    -> 90dp banner
//	h >= 250   -> 250dp rectangle
func SelectBannerSize(height *int) partner.BannerSize {
	if height == nil {
		return partner.BannerHeight50
	}
	switch h := *height; {
	case h < 90:
		return partner.BannerHeight50
	case h < 250:
		return partner.BannerHeight90
	default:
		return partner.RectangleHeight250
	}
}
