package player

import (
	"context"
	"fmt"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// TrackSource expands a catalog item on a platform into playable tracks. It may block.
type TrackSource interface {
	Tracks(ctx context.Context, item models.PlaylistItem, p models.Platform) ([]models.Track, error)
}

// Resolver lists the tracks behind a cache-backed embed.
type Resolver interface {
	Resolve(ctx context.Context, locator string, kind models.EmbedKind, prefetch bool, current int) (*models.ResolveResult, error)
}

// ServiceSource builds tracks from the embeds of an item. Direct-stream embeds play as a single
// track at their locator; cache-backed embeds are resolved on the media server.
type ServiceSource struct {
	Resolver Resolver
	// Prefetch asks the server to start downloading resolved tracks.
	Prefetch bool
}

// Tracks implements [TrackSource].
func (s ServiceSource) Tracks(ctx context.Context, item models.PlaylistItem, p models.Platform) ([]models.Track, error) {
	embed, ok := item.Embed(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s embed", shared.ErrUnplayable, item.Label(), p)
	}

	if p.Direct() {
		return []models.Track{{Position: 1, Title: item.Title, URL: embed.Locator}}, nil
	}

	result, err := s.Resolver.Resolve(ctx, embed.Locator, embed.Kind, s.Prefetch, 0)
	if err != nil {
		return nil, err
	}
	if len(result.Tracks) == 0 {
		return nil, fmt.Errorf("%w: %s resolved to no tracks", shared.ErrUnplayable, item.Label())
	}
	return result.Tracks, nil
}
