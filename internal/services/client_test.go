package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
)

func TestPrepare(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  map[string]string
		wantErr error
	}{
		{name: "cached", status: http.StatusOK},
		{name: "pending", status: http.StatusAccepted, header: map[string]string{"Retry-After": "7"}, wantErr: shared.ErrPending},
		{name: "not found", status: http.StatusNotFound, wantErr: shared.ErrNotCached},
		{name: "restricted", status: http.StatusForbidden, wantErr: shared.ErrSourceRestricted},
		{name: "unavailable", status: http.StatusBadGateway, wantErr: shared.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodHead {
					t.Errorf("expected HEAD, got %s", r.Method)
				}
				if r.URL.Path != "/media/dQw4w9WgXcQ" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewAPIService(server.URL, nil).Prepare(context.Background(), "dQw4w9WgXcQ")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			var pending *PendingError
			if errors.As(err, &pending) && pending.RetryAfter != 7*time.Second {
				t.Errorf("expected Retry-After 7s, got %s", pending.RetryAfter)
			}
		})
	}
}

func TestTypedEndpoints(t *testing.T) {
	var gotToken string
	var gotPatch settings.Patch

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/resolve", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("locator") != "PLabc" || q.Get("kind") != "collection" || q.Get("prefetch") != "true" || q.Get("current") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(models.ResolveResult{Locator: "PLabc", Kind: "collection", Tracks: []models.Track{{Key: "a"}, {Key: "b"}}})
	})
	mux.HandleFunc("GET /api/platforms", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.PlatformStatus{Bandcamp: true})
	})
	mux.HandleFunc("GET /media/{key}/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.MediaInfo{Key: r.PathValue("key"), Cached: true, State: models.MediaCached})
	})
	mux.HandleFunc("GET /api/admin/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(adminTokenHeader)
		json.NewEncoder(w).Encode(models.CacheReport{Cache: models.CacheStats{Count: 3}})
	})
	mux.HandleFunc("POST /api/admin/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "busy: 1 entries are being read"})
	})
	mux.HandleFunc("POST /api/admin/cache/evict", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("older_than") != "72h0m0s" {
			t.Errorf("unexpected older_than %q", r.URL.Query().Get("older_than"))
		}
		json.NewEncoder(w).Encode(models.ClearResult{Removed: 4})
	})
	mux.HandleFunc("DELETE /api/admin/cache/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") != "gone" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "not cached"})
	})
	mux.HandleFunc("PUT /api/admin/settings", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPatch)
		json.NewEncoder(w).Encode(settings.Settings{CacheMaxGB: 2, Bandcamp: true, YouTube: false})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewAPIService(server.URL, nil).WithAdminToken("tok")
	ctx := context.Background()

	t.Run("Resolve", func(t *testing.T) {
		result, err := client.Resolve(ctx, "PLabc", models.EmbedCollection, true, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result.Tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(result.Tracks))
		}
	})

	t.Run("Platforms", func(t *testing.T) {
		status, err := client.Platforms(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !status.Bandcamp || status.YouTube {
			t.Errorf("unexpected status %+v", status)
		}
	})

	t.Run("Info", func(t *testing.T) {
		info, err := client.Info(ctx, "abc")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.Key != "abc" || !info.Cached {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("CacheReport Sends Admin Token", func(t *testing.T) {
		report, err := client.CacheReport(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.Cache.Count != 3 {
			t.Errorf("expected 3 entries, got %d", report.Cache.Count)
		}
		if gotToken != "tok" {
			t.Errorf("expected admin token 'tok', got %q", gotToken)
		}
	})

	t.Run("ClearCache Busy", func(t *testing.T) {
		_, err := client.ClearCache(ctx)
		if !errors.Is(err, shared.ErrBusy) {
			t.Errorf("expected ErrBusy, got %v", err)
		}
	})

	t.Run("EvictOlderThan", func(t *testing.T) {
		n, err := client.EvictOlderThan(ctx, 72*time.Hour)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 4 {
			t.Errorf("expected 4 removed, got %d", n)
		}
	})

	t.Run("RemoveEntry", func(t *testing.T) {
		if err := client.RemoveEntry(ctx, "abc"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if err := client.RemoveEntry(ctx, "gone"); !errors.Is(err, shared.ErrNotCached) {
			t.Errorf("expected ErrNotCached, got %v", err)
		}
	})

	t.Run("UpdateSettings", func(t *testing.T) {
		off := false
		s, err := client.UpdateSettings(ctx, settings.Patch{YouTube: &off})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.YouTube {
			t.Error("expected youtube disabled")
		}
		if gotPatch.YouTube == nil || *gotPatch.YouTube || gotPatch.CacheMaxGB != nil {
			t.Errorf("unexpected patch sent: %+v", gotPatch)
		}
	})

	t.Run("Unknown Route", func(t *testing.T) {
		_, err := NewAPIService(server.URL+"/v2", nil).Platforms(ctx)
		if !errors.Is(err, shared.ErrNotCached) {
			t.Errorf("expected unmapped route to report 404 as ErrNotCached, got %v", err)
		}
	})

	t.Run("MediaURL", func(t *testing.T) {
		if got := client.MediaURL("abc"); got != server.URL+"/media/abc" {
			t.Errorf("unexpected media URL %s", got)
		}
	})
}
