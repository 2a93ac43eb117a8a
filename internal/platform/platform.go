// Package platform decides which media platform plays a catalog item.
package platform

import (
	"github.com/desertthunder/tapedeck/internal/models"
)

// Enablement carries the admin switches for each platform class.
type Enablement struct {
	Direct      bool `json:"direct"`
	CacheBacked bool `json:"cache_backed"`
}

// AllEnabled enables both platform classes.
var AllEnabled = Enablement{Direct: true, CacheBacked: true}

// Allows reports whether p is enabled.
func (e Enablement) Allows(p models.Platform) bool {
	switch {
	case p.Direct():
		return e.Direct
	case p.CacheBacked():
		return e.CacheBacked
	default:
		return false
	}
}

// Selector picks the platform for an item. It holds no state.
type Selector struct{}

// Choose returns the platform to play item on, or false when the item is unplayable.
//
// A user override wins when the item carries that platform and it is enabled. Otherwise the
// direct-stream platform is preferred over the cache-backed one.
func (Selector) Choose(item models.PlaylistItem, enabled Enablement, override models.Platform) (models.Platform, bool) {
	if override != "" && playable(item, enabled, override) {
		return override, true
	}
	for _, p := range models.Platforms {
		if p.Direct() && playable(item, enabled, p) {
			return p, true
		}
	}
	for _, p := range models.Platforms {
		if p.CacheBacked() && playable(item, enabled, p) {
			return p, true
		}
	}
	return "", false
}

// Available lists every platform item can currently be played on, in preference order.
func (Selector) Available(item models.PlaylistItem, enabled Enablement) []models.Platform {
	var out []models.Platform
	for _, p := range models.Platforms {
		if playable(item, enabled, p) {
			out = append(out, p)
		}
	}
	return out
}

func playable(item models.PlaylistItem, enabled Enablement, p models.Platform) bool {
	if !enabled.Allows(p) {
		return false
	}
	embed, ok := item.Embed(p)
	return ok && embed.Locator != ""
}
