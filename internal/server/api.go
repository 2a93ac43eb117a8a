package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// Resolver expands an embed locator into its streams.
type Resolver interface {
	Resolve(ctx context.Context, locator string, collection bool) ([]fetcher.RemoteStream, error)
}

// Prefetcher queues background downloads for a resolved track list.
type Prefetcher interface {
	Start(streams []fetcher.RemoteStream, current int) int
}

// SettingsManager reads and applies the admin settings.
type SettingsManager interface {
	Current() settings.Settings
	ApplyPatch(p settings.Patch) (settings.Settings, error)
}

// CacheAdmin is the part of the cache store exposed to administrators.
type CacheAdmin interface {
	Stats() models.CacheStats
	Entries() []models.CacheEntry
	ClearAll() (int, error)
	Remove(key string) error
	EvictOlderThan(age time.Duration) int
}

// DownloadStatser reports fetcher activity.
type DownloadStatser interface {
	Stats() models.DownloadStats
}

// APIHandler serves the public client API: track resolution and platform enablement.
type APIHandler struct {
	resolver   Resolver
	prefetcher Prefetcher
	settings   SettingsManager
	logger     *log.Logger
}

// NewAPIHandler creates the client API. prefetcher may be nil.
func NewAPIHandler(r Resolver, p Prefetcher, s SettingsManager, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &APIHandler{resolver: r, prefetcher: p, settings: s, logger: shared.WithLogger(logger, "component", "api")}
}

// Routes implements [Handler].
func (h *APIHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/health", Handler: h.health},
		{Method: http.MethodGet, Pattern: "/api/resolve", Handler: h.resolve},
		{Method: http.MethodGet, Pattern: "/api/platforms", Handler: h.platforms},
	}
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolve lists the tracks of a cache-backed embed.
//
// Query: locator (required), kind=single|collection (default single), prefetch=true, current=<index>.
func (h *APIHandler) resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locator := q.Get("locator")
	if locator == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: locator", shared.ErrMissingArgument))
		return
	}

	kind := models.EmbedKind(q.Get("kind"))
	switch kind {
	case "":
		kind = models.EmbedSingle
	case models.EmbedSingle, models.EmbedCollection:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: kind %q", shared.ErrInvalidArgument, kind))
		return
	}

	streams, err := h.resolver.Resolve(r.Context(), locator, kind == models.EmbedCollection)
	if err != nil {
		writeError(w, resolveStatus(err), err)
		return
	}

	result := models.ResolveResult{Locator: locator, Kind: string(kind), Tracks: make([]models.Track, len(streams))}
	for i, s := range streams {
		result.Tracks[i] = models.Track{Position: s.Position, Title: s.Title, Duration: s.Duration, Key: s.Key}
	}

	if prefetch, _ := strconv.ParseBool(q.Get("prefetch")); prefetch && h.prefetcher != nil {
		current, _ := strconv.Atoi(q.Get("current"))
		result.Prefetched = h.prefetcher.Start(streams, current)
	}

	writeJSON(w, http.StatusOK, result)
}

func resolveStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidLocator):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrSourceRestricted):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *APIHandler) platforms(w http.ResponseWriter, r *http.Request) {
	cur := h.settings.Current()
	writeJSON(w, http.StatusOK, models.PlatformStatus{Bandcamp: cur.Bandcamp, YouTube: cur.YouTube})
}

// AdminHandler serves cache administration and settings. Mount it behind [RequireAdmin].
type AdminHandler struct {
	cache     CacheAdmin
	downloads DownloadStatser
	settings  SettingsManager
	logger    *log.Logger
}

// NewAdminHandler creates the admin API.
func NewAdminHandler(c CacheAdmin, d DownloadStatser, s SettingsManager, logger *log.Logger) *AdminHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AdminHandler{cache: c, downloads: d, settings: s, logger: shared.WithLogger(logger, "component", "admin")}
}

// Routes implements [Handler].
func (h *AdminHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/api/admin/cache/stats", Handler: h.stats},
		{Method: http.MethodGet, Pattern: "/api/admin/cache/entries", Handler: h.entries},
		{Method: http.MethodPost, Pattern: "/api/admin/cache/clear", Handler: h.clear},
		{Method: http.MethodPost, Pattern: "/api/admin/cache/evict", Handler: h.evict},
		{Method: http.MethodDelete, Pattern: "/api/admin/cache/{key}", Handler: h.remove},
		{Method: http.MethodGet, Pattern: "/api/admin/settings", Handler: h.getSettings},
		{Method: http.MethodPut, Pattern: "/api/admin/settings", Handler: h.putSettings},
	}
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.CacheReport{Cache: h.cache.Stats(), Downloads: h.downloads.Stats()})
}

func (h *AdminHandler) entries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Entries())
}

func (h *AdminHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.ClearAll()
	if err != nil {
		if errors.Is(err, shared.ErrBusy) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("cache cleared", "removed", n)
	writeJSON(w, http.StatusOK, models.ClearResult{Removed: n})
}

// evict removes unpinned entries not accessed within ?older_than (a Go duration such as "72h").
func (h *AdminHandler) evict(w http.ResponseWriter, r *http.Request) {
	age, err := time.ParseDuration(r.URL.Query().Get("older_than"))
	if err != nil || age <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: older_than must be a positive duration", shared.ErrInvalidInput))
		return
	}

	n := h.cache.EvictOlderThan(age)
	h.logger.Info("evicted stale entries", "older_than", age, "removed", n)
	writeJSON(w, http.StatusOK, models.ClearResult{Removed: n})
}

func (h *AdminHandler) remove(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	switch err := h.cache.Remove(key); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, shared.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, shared.ErrNotCached), errors.Is(err, shared.ErrInvalidKey):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *AdminHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

func (h *AdminHandler) putSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	next, err := h.settings.ApplyPatch(patch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shared.ErrInvalidConfig) || errors.Is(err, shared.ErrOutOfRange) || errors.Is(err, shared.ErrBusy) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}
