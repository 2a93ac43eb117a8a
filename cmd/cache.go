package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/formatter"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// withEngine opens the local engine for the duration of fn.
func (r *Runner) withEngine(fn func(e *engine) error) error {
	e, err := r.openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// CacheStats prints cache usage and download statistics.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	var report models.CacheReport

	if cmd.Bool("local") {
		err := r.withEngine(func(e *engine) error {
			report = models.CacheReport{Cache: e.store.Stats(), Downloads: e.fetcher.Stats()}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		remote, err := r.api.CacheReport(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch cache stats: %w", err)
		}
		report = *remote
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}
	_, err := r.output.Write(formatter.ReportToText(report))
	return err
}

// CacheList prints cached entries in eviction order as a table, CSV or JSON.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	var entries []models.CacheEntry

	if cmd.Bool("local") {
		err := r.withEngine(func(e *engine) error {
			entries = e.store.Entries()
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		remote, err := r.api.CacheEntries(ctx)
		if err != nil {
			return fmt.Errorf("failed to list cache entries: %w", err)
		}
		entries = remote
	}

	r.logger.Debug("listed cache entries", "count", len(entries))

	var (
		data []byte
		err  error
	)
	switch {
	case cmd.Bool("json"):
		data, err = formatter.ToJSON(entries)
	case cmd.Bool("csv"):
		data, err = formatter.EntriesToCSV(entries)
	default:
		if len(entries) == 0 {
			data = []byte("Cache is empty\n")
		} else {
			data = []byte(formatter.EntriesToTable(entries, time.Now()) + "\n")
		}
	}
	if err != nil {
		return err
	}

	return r.writeTo(cmd.String("output"), data)
}

// CacheClear removes every cached entry.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	var removed int

	if cmd.Bool("local") {
		err := r.withEngine(func(e *engine) error {
			n, err := e.store.ClearAll()
			removed = n
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	} else {
		n, err := r.api.ClearCache(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		removed = n
	}

	r.logger.Info("cache cleared", "removed", removed)
	return r.writePlain("✓ Removed %d entries\n", removed)
}

// CacheRemove deletes one cached entry by key.
func (r *Runner) CacheRemove(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	var err error
	if cmd.Bool("local") {
		err = r.withEngine(func(e *engine) error { return e.store.Remove(key) })
	} else {
		err = r.api.RemoveEntry(ctx, key)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}

	return r.writePlain("✓ Removed %s\n", key)
}

// CacheEvict removes entries that have not been accessed within --older-than.
func (r *Runner) CacheEvict(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: --older-than must be positive", shared.ErrInvalidArgument)
	}

	var removed int
	if cmd.Bool("local") {
		err := r.withEngine(func(e *engine) error {
			removed = e.store.EvictOlderThan(age)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		n, err := r.api.EvictOlderThan(ctx, age)
		if err != nil {
			return fmt.Errorf("failed to evict: %w", err)
		}
		removed = n
	}

	r.logger.Info("evicted stale entries", "older_than", age, "removed", removed)
	return r.writePlain("✓ Removed %d entries not played in %s\n", removed, age)
}
