package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/formatter"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
	"github.com/desertthunder/tapedeck/internal/tasks"
)

func embedKind(collection bool) models.EmbedKind {
	if collection {
		return models.EmbedCollection
	}
	return models.EmbedSingle
}

func streamsToResult(locator string, collection bool, streams []fetcher.RemoteStream) *models.ResolveResult {
	result := &models.ResolveResult{Locator: locator, Kind: string(embedKind(collection)), Tracks: make([]models.Track, len(streams))}
	for i, s := range streams {
		result.Tracks[i] = models.Track{Position: s.Position, Title: s.Title, Duration: s.Duration, Key: s.Key}
	}
	return result
}

// FetchResolve lists the tracks behind a locator, through the server or directly with yt-dlp.
func (r *Runner) FetchResolve(ctx context.Context, cmd *cli.Command) error {
	locator := cmd.StringArg("locator")
	if locator == "" {
		return fmt.Errorf("%w: locator", shared.ErrMissingArgument)
	}
	collection := cmd.Bool("collection")

	var result *models.ResolveResult
	if cmd.Bool("local") {
		f := fetcher.New(fetcher.NewYTDLP(r.config.Fetcher.YTDLPPath), nil, fetcher.Options{
			Timeout:       r.config.Fetcher.DownloadTimeout.Duration,
			RatePerSecond: r.config.Fetcher.RatePerSecond,
			Logger:        r.logger,
		})
		defer f.Close()

		streams, err := f.Resolve(ctx, locator, collection)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", locator, err)
		}
		result = streamsToResult(locator, collection, streams)
	} else {
		remote, err := r.api.Resolve(ctx, locator, embedKind(collection), cmd.Bool("prefetch"), 0)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", locator, err)
		}
		result = remote
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	_, err := r.output.Write(formatter.TracksToText(result))
	return err
}

// FetchDownload resolves a locator and downloads every track into the local cache, printing
// progress as tracks finish.
func (r *Runner) FetchDownload(ctx context.Context, cmd *cli.Command) error {
	locator := cmd.StringArg("locator")
	if locator == "" {
		return fmt.Errorf("%w: locator", shared.ErrMissingArgument)
	}

	return r.withEngine(func(e *engine) error {
		progress := make(chan tasks.ProgressUpdate, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for update := range progress {
				r.writePlain("%s\n", update.Message)
			}
		}()

		streams, result, err := tasks.ResolveAndPrefetch(ctx, progress, e.fetcher, e.prefetcher, locator, cmd.Bool("collection"), true)
		close(progress)
		<-done

		if err != nil {
			return fmt.Errorf("failed to download %s: %w", locator, err)
		}

		r.logger.Info("download finished", "locator", locator, "tracks", len(streams), "ok", result.Successful, "failed", result.Failed)
		r.writePlainln("✓ %d of %d tracks cached", result.Successful, result.Total)

		if result.Failed == 0 {
			return nil
		}

		keys := make([]string, 0, len(result.Errors))
		for key := range result.Errors {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			r.writePlain("  ✗ %s: %v\n", key, result.Errors[key])
		}
		return fmt.Errorf("%w: %d of %d downloads failed", shared.ErrSourceUnavailable, result.Failed, result.Total)
	})
}
