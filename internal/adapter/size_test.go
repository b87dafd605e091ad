package adapter

import (
	"testing"

	"github.com/thenexusengine/tne_medbridge/internal/partner"
)

func TestSelectBannerSize(t *testing.T) {
	tests := []struct {
		name     string
		height   *int
		expected partner.BannerSize
	}{
		{"nil height", nil, partner.BannerHeight50},
		{"zero", intPtr(0), partner.BannerHeight50},
		{"below smallest boundary", intPtr(49), partner.BannerHeight50},
		{"exactly 50", intPtr(50), partner.BannerHeight50},
		{"just below medium", intPtr(89), partner.BannerHeight50},
		{"exactly 90", intPtr(90), partner.BannerHeight90},
		{"middle of medium bucket", intPtr(200), partner.BannerHeight90},
		{"just below rectangle", intPtr(249), partner.BannerHeight90},
		{"exactly 250", intPtr(250), partner.RectangleHeight250},
		{"above rectangle", intPtr(600), partner.RectangleHeight250},
		{"negative height", intPtr(-10), partner.BannerHeight50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBannerSize(tt.height)
			if got != tt.expected {
				t.Errorf("SelectBannerSize(%v) = %v, want %v", tt.height, got, tt.expected)
			}
		})
	}
}

func intPtr(v int) *int {
	return &v
}
