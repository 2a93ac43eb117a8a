package platform

import (
	"testing"

	"github.com/desertthunder/tapedeck/internal/models"
)

func item(platforms ...models.Platform) models.PlaylistItem {
	embeds := make(map[models.Platform]models.PlatformEmbed)
	for _, p := range platforms {
		embeds[p] = models.PlatformEmbed{Locator: "loc-" + string(p), Kind: models.EmbedCollection}
	}
	return models.PlaylistItem{ID: "1", Title: "Album", Embeds: embeds}
}

func TestSelectorChoose(t *testing.T) {
	var s Selector

	tc := []struct {
		name     string
		item     models.PlaylistItem
		enabled  Enablement
		override models.Platform
		want     models.Platform
		ok       bool
	}{
		{
			name:    "both present and enabled prefers direct",
			item:    item(models.PlatformBandcamp, models.PlatformYouTube),
			enabled: AllEnabled,
			want:    models.PlatformBandcamp,
			ok:      true,
		},
		{
			name:    "only cache-backed present while direct is enabled",
			item:    item(models.PlatformYouTube),
			enabled: AllEnabled,
			want:    models.PlatformYouTube,
			ok:      true,
		},
		{
			name:    "direct disabled falls back",
			item:    item(models.PlatformBandcamp, models.PlatformYouTube),
			enabled: Enablement{CacheBacked: true},
			want:    models.PlatformYouTube,
			ok:      true,
		},
		{
			name:    "only present platform disabled",
			item:    item(models.PlatformYouTube),
			enabled: Enablement{Direct: true},
		},
		{
			name:    "no embeds",
			item:    item(),
			enabled: AllEnabled,
		},
		{
			name:     "override wins when playable",
			item:     item(models.PlatformBandcamp, models.PlatformYouTube),
			enabled:  AllEnabled,
			override: models.PlatformYouTube,
			want:     models.PlatformYouTube,
			ok:       true,
		},
		{
			name:     "override ignored when absent",
			item:     item(models.PlatformBandcamp),
			enabled:  AllEnabled,
			override: models.PlatformYouTube,
			want:     models.PlatformBandcamp,
			ok:       true,
		},
		{
			name:     "override ignored when disabled",
			item:     item(models.PlatformBandcamp, models.PlatformYouTube),
			enabled:  Enablement{Direct: true},
			override: models.PlatformYouTube,
			want:     models.PlatformBandcamp,
			ok:       true,
		},
		{
			name:    "empty locator counts as absent",
			item:    models.PlaylistItem{Embeds: map[models.Platform]models.PlatformEmbed{models.PlatformBandcamp: {}}},
			enabled: AllEnabled,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Choose(tt.item, tt.enabled, tt.override)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Choose() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSelectorAvailable(t *testing.T) {
	var s Selector

	got := s.Available(item(models.PlatformYouTube, models.PlatformBandcamp), AllEnabled)
	if len(got) != 2 || got[0] != models.PlatformBandcamp || got[1] != models.PlatformYouTube {
		t.Errorf("unexpected available platforms %v", got)
	}

	got = s.Available(item(models.PlatformYouTube, models.PlatformBandcamp), Enablement{})
	if len(got) != 0 {
		t.Errorf("expected none available, got %v", got)
	}
}
