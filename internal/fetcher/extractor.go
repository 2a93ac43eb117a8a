package fetcher

import (
	"context"
)

// RemoteStream is one downloadable audio stream discovered by [Extractor.Resolve].
type RemoteStream struct {
	Key      string  `json:"key"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration,omitempty"`
	Position int     `json:"position"`
	// SizeEstimate is the approximate audio size in bytes, zero when upstream did not report one.
	SizeEstimate int64 `json:"size_estimate,omitempty"`
}

// Extractor talks to the upstream platform.
//
// Implementations report failures wrapped in [shared.ErrSourceUnavailable] or
// [shared.ErrSourceRestricted]; anything else is treated as unavailable.
type Extractor interface {
	// Resolve expands a locator into its streams, in playlist order.
	Resolve(ctx context.Context, locator string) ([]RemoteStream, error)
	// Download writes the audio of stream into destDir and returns the path of the finished file.
	Download(ctx context.Context, stream RemoteStream, destDir string) (string, error)
}
