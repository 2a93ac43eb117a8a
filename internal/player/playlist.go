package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// DecodePlaylist reads a JSON array of catalog items.
//
// Embeds for unknown platforms or with invalid fields are dropped, since the catalog only lists
// platforms with discovered media. Items are otherwise kept even when nothing is playable, so the
// orchestrator can surface them.
func DecodePlaylist(r io.Reader) ([]models.PlaylistItem, error) {
	var items []models.PlaylistItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: failed to parse playlist: %v", shared.ErrInvalidInput, err)
	}

	for i := range items {
		for p, embed := range items[i].Embeds {
			if !p.Valid() || embed.Validate() != nil {
				delete(items[i].Embeds, p)
			}
		}
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("%d", i+1)
		}
	}
	return items, nil
}

// LoadPlaylist reads a playlist from a file path or an http(s) URL.
func LoadPlaylist(ctx context.Context, source string, client *http.Client) ([]models.PlaylistItem, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: catalog returned %d", shared.ErrInvalidInput, resp.StatusCode)
		}
		return DecodePlaylist(resp.Body)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist: %w", err)
	}
	defer f.Close()
	return DecodePlaylist(f)
}
