package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/tapedeck/internal/cache"
	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/metrics"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// DefaultRetryAfter is the Retry-After hint when no download estimate exists.
const DefaultRetryAfter = 5 * time.Second

// contentTypes maps cached container extensions to audio MIME types.
var contentTypes = map[string]string{
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
}

// MediaCache is the part of the cache store the media endpoint reads.
type MediaCache interface {
	Acquire(key string) (*cache.Handle, error)
	Peek(key string) (models.CacheEntry, bool)
}

// MediaFetcher is the part of the fetcher the media endpoint drives.
type MediaFetcher interface {
	Enqueue(key string, ref fetcher.RemoteStream) (models.DownloadJob, error)
	Status(key string) (models.DownloadJob, bool)
	Failure(key string) error
	ETA(key string) (time.Duration, bool)
	SizeEstimate(key string) int64
}

// MediaHandler serves cached audio by key and starts downloads on a miss.
type MediaHandler struct {
	cache   MediaCache
	fetcher MediaFetcher
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewMediaHandler creates the media endpoint. m may be nil.
func NewMediaHandler(c MediaCache, f MediaFetcher, m *metrics.Metrics, logger *log.Logger) *MediaHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &MediaHandler{cache: c, fetcher: f, metrics: m, logger: shared.WithLogger(logger, "component", "media")}
}

// Routes implements [Handler].
func (h *MediaHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/media/{key}", Handler: h.serveMedia},
		{Method: http.MethodHead, Pattern: "/media/{key}", Handler: h.serveMedia},
		{Method: http.MethodGet, Pattern: "/media/{key}/info", Handler: h.serveInfo},
	}
}

func (h *MediaHandler) observe(result string) {
	if h.metrics != nil {
		h.metrics.ObserveMedia(result)
	}
}

// serveMedia streams a cached file or reports that it is on its way.
//
// The pin taken on a hit is held until ServeContent returns, which happens on completion or when
// the client goes away.
func (h *MediaHandler) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !cache.ValidKey(key) {
		h.observe(metrics.ResultNotFound)
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", shared.ErrInvalidKey, key))
		return
	}

	if h.serveCached(w, r, key) {
		return
	}

	if err := h.fetcher.Failure(key); err != nil {
		h.writeFailure(w, key, err)
		return
	}

	job, err := h.fetcher.Enqueue(key, fetcher.RemoteStream{Key: key, URL: fetcher.RefForKey(key)})
	switch {
	case err != nil:
		h.observe(metrics.ResultNotFound)
		writeError(w, http.StatusNotFound, err)
		return
	case job.State == models.JobDone:
		// admitted between the miss and the enqueue
		if h.serveCached(w, r, key) {
			return
		}
	case job.State == models.JobFailed:
		err := h.fetcher.Failure(key)
		if err == nil {
			err = fmt.Errorf("%w: %s", shared.ErrSourceUnavailable, job.Error)
		}
		h.writeFailure(w, key, err)
		return
	}

	h.observe(metrics.ResultPending)
	w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter(key)))
	writeJSON(w, http.StatusAccepted, models.MediaStatus{
		Status: models.MediaPending,
		Key:    key,
		JobID:  job.ID,
		State:  job.State,
	})
}

func (h *MediaHandler) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	handle, err := h.cache.Acquire(key)
	if err != nil {
		return false
	}
	defer handle.Release()

	f, err := handle.Open()
	if err != nil {
		h.logger.Error("cached file unreadable", "key", key, "err", err)
		h.observe(metrics.ResultFailed)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to open cached media: %w", err))
		return true
	}
	defer f.Close()

	if ct, ok := contentTypes[filepath.Ext(handle.Entry.Filename)]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	h.observe(metrics.ResultHit)
	http.ServeContent(w, r, handle.Entry.Filename, handle.Entry.CreatedAt, f)
	return true
}

func (h *MediaHandler) writeFailure(w http.ResponseWriter, key string, err error) {
	status, result := http.StatusBadGateway, metrics.ResultFailed
	switch {
	case errors.Is(err, shared.ErrSourceRestricted):
		status, result = http.StatusForbidden, metrics.ResultRestricted
	case errors.Is(err, shared.ErrBusy):
		// pinned entries hold the budget; worth asking again once streams finish
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", strconv.Itoa(h.retryAfter(key)))
	case errors.Is(err, shared.ErrCapacityUnavailable):
		status = http.StatusRequestEntityTooLarge
	}
	h.observe(result)
	writeJSON(w, status, models.MediaStatus{
		Status: models.MediaFailed,
		Key:    key,
		State:  models.JobFailed,
		Error:  err.Error(),
	})
}

// retryAfter returns whole seconds until the download of key is expected to finish, at least 1.
func (h *MediaHandler) retryAfter(key string) int {
	eta, ok := h.fetcher.ETA(key)
	if !ok {
		eta = DefaultRetryAfter
	}
	return max(int(math.Ceil(eta.Seconds())), 1)
}

func (h *MediaHandler) serveInfo(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !cache.ValidKey(key) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", shared.ErrInvalidKey, key))
		return
	}

	info := models.MediaInfo{Key: key, State: models.MediaAbsent}
	if entry, ok := h.cache.Peek(key); ok {
		info.Cached = true
		info.State = models.MediaCached
		info.Size = entry.Size
		info.SizeEstimate = entry.Size
		writeJSON(w, http.StatusOK, info)
		return
	}

	if job, ok := h.fetcher.Status(key); ok {
		info.State = string(job.State)
		info.Error = job.Error
		info.SizeEstimate = h.fetcher.SizeEstimate(key)
		if eta, ok := h.fetcher.ETA(key); ok {
			info.ETASeconds = eta.Seconds()
		}
	}
	writeJSON(w, http.StatusOK, info)
}
