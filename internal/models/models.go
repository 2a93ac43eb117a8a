// package models defines the data model for the media engine
package models

import (
	"fmt"
	"time"
)

// Platform names a third-party media source.
type Platform string

const (
	// PlatformBandcamp streams directly from embed URLs.
	PlatformBandcamp Platform = "bandcamp"
	// PlatformYouTube requires server-side extraction and caching.
	PlatformYouTube Platform = "youtube"
)

// Platforms lists every known platform in preference order.
var Platforms = []Platform{PlatformBandcamp, PlatformYouTube}

// Direct reports whether the platform is directly playable without the media cache.
func (p Platform) Direct() bool { return p == PlatformBandcamp }

// CacheBacked reports whether playback goes through the media endpoint.
func (p Platform) CacheBacked() bool { return p == PlatformYouTube }

func (p Platform) Valid() bool { return p.Direct() || p.CacheBacked() }

func (p Platform) String() string { return string(p) }

// ParsePlatform converts a name to a [Platform].
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// EmbedKind distinguishes a single track embed from an album/playlist embed.
type EmbedKind string

const (
	EmbedSingle     EmbedKind = "single"
	EmbedCollection EmbedKind = "collection"
)

// PlatformEmbed is a reference to a release on one platform, produced by the verification collaborator.
type PlatformEmbed struct {
	Locator    string    `json:"locator"`
	SourceURL  string    `json:"source_url,omitempty"`
	Confidence *int      `json:"confidence,omitempty"`
	Kind       EmbedKind `json:"kind"`
}

// Validate checks the embed has a locator and a known kind.
func (e PlatformEmbed) Validate() error {
	if e.Locator == "" {
		return fmt.Errorf("embed locator is required")
	}
	if e.Kind != EmbedSingle && e.Kind != EmbedCollection {
		return fmt.Errorf("unknown embed kind %q", e.Kind)
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 100) {
		return fmt.Errorf("confidence %d out of range", *e.Confidence)
	}
	return nil
}

// PlaylistItem is one catalog release.
//
// Embeds contains only platforms with discovered media.
type PlaylistItem struct {
	ID          string                     `json:"id"`
	Title       string                     `json:"title"`
	Artist      string                     `json:"artist"`
	ReleaseType string                     `json:"release_type,omitempty"`
	Cover       string                     `json:"cover,omitempty"`
	Embeds      map[Platform]PlatformEmbed `json:"embeds"`
}

// Embed returns the embed for p when present.
func (i PlaylistItem) Embed(p Platform) (PlatformEmbed, bool) {
	e, ok := i.Embeds[p]
	return e, ok
}

// Label returns "Artist - Title" for display.
func (i PlaylistItem) Label() string {
	if i.Artist == "" {
		return i.Title
	}
	return i.Artist + " - " + i.Title
}

// Track is one playable entry of a release.
//
// URL is set for direct-stream tracks; Key is set for cache-backed tracks.
// Duration is in seconds and zero while unknown.
type Track struct {
	Position int     `json:"position"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration,omitempty"`
	URL      string  `json:"url,omitempty"`
	Key      string  `json:"key,omitempty"`
}

// Locator returns whichever media locator the track carries.
func (t Track) Locator() string {
	if t.Key != "" {
		return t.Key
	}
	return t.URL
}

// CacheEntry is a downloaded media blob owned by the cache.
type CacheEntry struct {
	Key        string    `json:"key"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_accessed"`
	Pins       int       `json:"pins"`
	Sequence   int64     `json:"sequence"`
}

// Pinned reports whether the entry is being read.
func (e CacheEntry) Pinned() bool { return e.Pins > 0 }

// CacheStats is a point-in-time summary of the cache budget.
type CacheStats struct {
	Size         int64   `json:"total_size"`
	MaxSize      int64   `json:"max_size"`
	UsagePercent float64 `json:"usage_percent"`
	Count        int     `json:"file_count"`
	Available    int64   `json:"available_bytes"`
}

// JobState is the lifecycle of a [DownloadJob].
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Terminal reports whether the job has finished.
func (s JobState) Terminal() bool { return s == JobDone || s == JobFailed }

// DownloadJob is a snapshot of a fetcher job.
type DownloadJob struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	State      JobState  `json:"state"`
	Waiters    int       `json:"waiters"`
	Attempts   int       `json:"attempts"`
	Size       int64     `json:"size,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// DownloadStats summarizes fetcher activity.
type DownloadStats struct {
	Total       int     `json:"total_downloads"`
	Successful  int     `json:"successful_downloads"`
	Failed      int     `json:"failed_downloads"`
	SuccessRate float64 `json:"success_rate"`
	Active      int     `json:"active_downloads"`
	Queued      int     `json:"queued_downloads"`
	MaxParallel int     `json:"max_parallel"`
}
