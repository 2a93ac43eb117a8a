// API client for the tapedeck media service
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// DefaultBaseURL is the media service address used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// adminTokenHeader matches the header the server's admin authorizer reads.
const adminTokenHeader = "X-Admin-Token"

// APIService provides typed and raw access to the media service HTTP API.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	adminToken string
}

// NewAPIService creates a new API service instance for the media service.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// WithAdminToken sets the token sent to admin endpoints.
func (a *APIService) WithAdminToken(token string) *APIService {
	a.adminToken = token
	return a
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Put performs a PUT request with the given JSON data and returns the raw response.
func (a *APIService) Put(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPut, path, data)
}

// Head performs a HEAD request and returns the raw response.
func (a *APIService) Head(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodHead, path, nil)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	fullURL := a.baseURL + path

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.adminToken != "" {
		req.Header.Set(adminTokenHeader, a.adminToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// MediaURL returns the streaming URL of key.
func (a *APIService) MediaURL(key string) string {
	return a.baseURL + "/media/" + url.PathEscape(key)
}

// Prepare asks the server whether key can be streamed now, starting its download if not.
//
// It returns nil when the media is cached. A download in progress is reported as
// [shared.ErrPending] wrapped in a [*PendingError] carrying the server's Retry-After hint.
func (a *APIService) Prepare(ctx context.Context, key string) error {
	resp, err := a.Head(ctx, "/media/"+url.PathEscape(key))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusAccepted:
		return &PendingError{Key: key, RetryAfter: retryAfter(resp.Headers)}
	default:
		return statusError(resp)
	}
}

// PendingError reports that media is still downloading.
type PendingError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("%v: %s (retry after %s)", shared.ErrPending, e.Key, e.RetryAfter)
}

func (e *PendingError) Unwrap() error { return shared.ErrPending }

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Info returns what the server knows about key.
func (a *APIService) Info(ctx context.Context, key string) (*models.MediaInfo, error) {
	var info models.MediaInfo
	if err := a.getJSON(ctx, "/media/"+url.PathEscape(key)+"/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Resolve lists the cache-backed tracks of an embed locator. With prefetch set the server starts
// downloading them, current track first.
func (a *APIService) Resolve(ctx context.Context, locator string, kind models.EmbedKind, prefetch bool, current int) (*models.ResolveResult, error) {
	q := url.Values{}
	q.Set("locator", locator)
	q.Set("kind", string(kind))
	if prefetch {
		q.Set("prefetch", "true")
		q.Set("current", strconv.Itoa(current))
	}

	var result models.ResolveResult
	if err := a.getJSON(ctx, "/api/resolve?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Platforms returns the platform enablement published by the server.
func (a *APIService) Platforms(ctx context.Context) (*models.PlatformStatus, error) {
	var status models.PlatformStatus
	if err := a.getJSON(ctx, "/api/platforms", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CacheReport returns cache and download statistics. Requires the admin token.
func (a *APIService) CacheReport(ctx context.Context) (*models.CacheReport, error) {
	var report models.CacheReport
	if err := a.getJSON(ctx, "/api/admin/cache/stats", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CacheEntries lists cached entries in eviction order. Requires the admin token.
func (a *APIService) CacheEntries(ctx context.Context) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	if err := a.getJSON(ctx, "/api/admin/cache/entries", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClearCache removes every cached entry. Fails with [shared.ErrBusy] while media is being served.
func (a *APIService) ClearCache(ctx context.Context) (int, error) {
	return a.postRemoved(ctx, "/api/admin/cache/clear")
}

func (a *APIService) postRemoved(ctx context.Context, path string) (int, error) {
	resp, err := a.Post(ctx, path, []byte("{}"))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}

	var result models.ClearResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Removed, nil
}

// EvictOlderThan removes cached entries not accessed within age. Requires the admin token.
func (a *APIService) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	q := url.Values{}
	q.Set("older_than", age.String())
	return a.postRemoved(ctx, "/api/admin/cache/evict?"+q.Encode())
}

// RemoveEntry deletes one cached entry. Requires the admin token.
func (a *APIService) RemoveEntry(ctx context.Context, key string) error {
	resp, err := a.do(ctx, http.MethodDelete, "/api/admin/cache/"+url.PathEscape(key), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Settings returns the admin settings.
func (a *APIService) Settings(ctx context.Context) (*settings.Settings, error) {
	var s settings.Settings
	if err := a.getJSON(ctx, "/api/admin/settings", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings applies a partial settings change and returns the result.
func (a *APIService) UpdateSettings(ctx context.Context, patch settings.Patch) (*settings.Settings, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	resp, err := a.Put(ctx, "/api/admin/settings", data)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var s settings.Settings
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &s, nil
}

func (a *APIService) getJSON(ctx context.Context, path string, v any) error {
	resp, err := a.Get(ctx, path)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError maps an unsuccessful response onto the shared error taxonomy.
func statusError(resp *APIResponse) error {
	detail := http.StatusText(resp.StatusCode)
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(resp.Body, &envelope) == nil && envelope.Error != "" {
		detail = envelope.Error
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = shared.ErrNotCached
	case http.StatusForbidden:
		sentinel = shared.ErrSourceRestricted
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		sentinel = shared.ErrSourceUnavailable
	case http.StatusConflict, http.StatusServiceUnavailable:
		sentinel = shared.ErrBusy
	case http.StatusRequestEntityTooLarge:
		sentinel = shared.ErrCapacityUnavailable
	case http.StatusUnauthorized:
		sentinel = shared.ErrUnauthorized
	case http.StatusBadRequest:
		sentinel = shared.ErrInvalidInput
	default:
		sentinel = errors.New("unexpected response")
	}
	return fmt.Errorf("%w: %d %s", sentinel, resp.StatusCode, detail)
}
