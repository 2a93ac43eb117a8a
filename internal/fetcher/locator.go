package fetcher

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/desertthunder/tapedeck/internal/shared"
)

const watchURL = "https://www.youtube.com/watch?v="

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	// watch?v=, youtu.be/, /embed/, /v/ and /shorts/ forms
	videoURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/v/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
	}
	playlistPattern = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
)

// VideoID extracts the 11 character video ID from a URL or bare ID.
func VideoID(locator string) (string, bool) {
	locator = strings.TrimSpace(locator)
	if videoIDPattern.MatchString(locator) {
		return locator, true
	}
	for _, re := range videoURLPatterns {
		if m := re.FindStringSubmatch(locator); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// PlaylistID extracts the list= parameter from a playlist or embed URL.
func PlaylistID(locator string) (string, bool) {
	if m := playlistPattern.FindStringSubmatch(locator); m != nil {
		return m[1], true
	}
	// bare playlist IDs are longer than video IDs
	if !strings.ContainsAny(locator, "/?&=") && len(locator) > 11 {
		return locator, true
	}
	return "", false
}

// RefForKey returns the canonical watch URL for a video ID cache key.
func RefForKey(key string) string {
	return watchURL + key
}

// Normalize turns a locator into the URL handed to the extractor.
//
// Collections resolve through their playlist URL; everything else is reduced to a watch URL.
func Normalize(locator string, collection bool) (string, error) {
	if collection {
		if id, ok := PlaylistID(locator); ok {
			return "https://www.youtube.com/playlist?list=" + url.QueryEscape(id), nil
		}
	}
	if id, ok := VideoID(locator); ok {
		return RefForKey(id), nil
	}
	if id, ok := PlaylistID(locator); ok {
		return "https://www.youtube.com/playlist?list=" + url.QueryEscape(id), nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrInvalidLocator, locator)
}
