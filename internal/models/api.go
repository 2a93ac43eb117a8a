package models

// Media status values reported by the media endpoint.
const (
	MediaCached  = "cached"
	MediaPending = "pending"
	MediaFailed  = "failed"
	MediaAbsent  = "absent"
)

// MediaStatus is the body of a non-200 media response.
type MediaStatus struct {
	Status string   `json:"status"`
	Key    string   `json:"key"`
	JobID  string   `json:"job_id,omitempty"`
	State  JobState `json:"state,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// MediaInfo describes what the server knows about a key without serving it.
type MediaInfo struct {
	Key          string  `json:"key"`
	Cached       bool    `json:"cached"`
	State        string  `json:"state"`
	Size         int64   `json:"size,omitempty"`
	SizeEstimate int64   `json:"size_estimate"`
	ETASeconds   float64 `json:"eta_seconds"`
	Error        string  `json:"error,omitempty"`
}

// ResolveResult is the track list of a cache-backed embed.
type ResolveResult struct {
	Locator    string  `json:"locator"`
	Kind       string  `json:"kind"`
	Tracks     []Track `json:"tracks"`
	Prefetched int     `json:"prefetched,omitempty"`
}

// PlatformStatus reports which platforms clients may use.
type PlatformStatus struct {
	Bandcamp bool `json:"bandcamp"`
	YouTube  bool `json:"youtube"`
}

// CacheReport combines cache and download statistics for administrators.
type CacheReport struct {
	Cache     CacheStats    `json:"cache"`
	Downloads DownloadStats `json:"downloads"`
}

// ClearResult reports a cache clear.
type ClearResult struct {
	Removed int `json:"removed"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
