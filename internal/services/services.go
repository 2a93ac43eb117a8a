// package services defines the clients for the tapedeck media service
package services

import (
	"context"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/settings"
)

// MediaService is what the player needs from the media server.
type MediaService interface {
	// MediaURL returns the streaming URL of a cached key.
	MediaURL(key string) string

	// Prepare reports whether key can be streamed now. A download in progress is [shared.ErrPending].
	Prepare(ctx context.Context, key string) error

	// Info returns cache and download state for key.
	Info(ctx context.Context, key string) (*models.MediaInfo, error)

	// Resolve lists the tracks behind a cache-backed embed locator.
	Resolve(ctx context.Context, locator string, kind models.EmbedKind, prefetch bool, current int) (*models.ResolveResult, error)

	// Platforms returns the platforms clients may use.
	Platforms(ctx context.Context) (*models.PlatformStatus, error)
}

// AdminService covers the cache administration and settings endpoints.
type AdminService interface {
	CacheReport(ctx context.Context) (*models.CacheReport, error)
	CacheEntries(ctx context.Context) ([]models.CacheEntry, error)
	ClearCache(ctx context.Context) (int, error)
	EvictOlderThan(ctx context.Context, age time.Duration) (int, error)
	RemoveEntry(ctx context.Context, key string) error
	Settings(ctx context.Context) (*settings.Settings, error)
	UpdateSettings(ctx context.Context, patch settings.Patch) (*settings.Settings, error)
}

var (
	_ MediaService = (*APIService)(nil)
	_ AdminService = (*APIService)(nil)
)
