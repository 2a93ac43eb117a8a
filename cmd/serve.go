package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/cache"
	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/metrics"
	"github.com/desertthunder/tapedeck/internal/repositories"
	"github.com/desertthunder/tapedeck/internal/server"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
	"github.com/desertthunder/tapedeck/internal/tasks"
)

// engine is the in-process media service: cache, fetcher, prefetcher and settings over one database.
//
// Opening the cache clears its incoming directory, so an engine must not be opened next to a
// running server on the same cache.
type engine struct {
	db         *sql.DB
	store      *cache.Store
	fetcher    *fetcher.Fetcher
	prefetcher *tasks.Prefetcher
	settings   *settings.Manager
	metrics    *metrics.Metrics
}

func (r *Runner) openEngine() (*engine, error) {
	cfg := r.config

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Saved settings win over the config file, so they are loaded before the cache trims itself.
	mgr, err := settings.NewManager(settings.FromConfig(cfg), nil, repositories.NewSettingsRepository(db), r.logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	m := metrics.New()
	store, err := cache.Open(cache.Options{
		Dir:     cfg.Cache.Dir,
		MaxSize: shared.GBToBytes(mgr.Current().CacheMaxGB),
		Index:   repositories.NewCacheEntryRepository(db),
		Logger:  r.logger,
		OnEvict: m.ObserveEviction,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mgr.AttachBudget(store); err != nil {
		db.Close()
		return nil, err
	}

	f := fetcher.New(fetcher.NewYTDLP(cfg.Fetcher.YTDLPPath), store, fetcher.Options{
		MaxParallel:   mgr.Current().MaxParallel,
		MaxAttempts:   cfg.Fetcher.MaxAttempts,
		Timeout:       cfg.Fetcher.DownloadTimeout.Duration,
		FailureTTL:    cfg.Fetcher.FailureTTL.Duration,
		RatePerSecond: cfg.Fetcher.RatePerSecond,
		Logger:        r.logger,
		OnFinish:      m.ObserveDownload,
	})

	m.WatchCache(store)
	m.WatchDownloads(f)

	mgr.Subscribe(func(s settings.Settings) {
		if s.MaxParallel == 0 || s.MaxParallel == f.Stats().MaxParallel {
			return
		}
		if err := f.SetMaxParallel(s.MaxParallel); err != nil {
			r.logger.Error("failed to change download parallelism", "err", err)
		}
	})

	return &engine{
		db:         db,
		store:      store,
		fetcher:    f,
		prefetcher: tasks.NewPrefetcher(f, mgr.Current().MaxParallel, r.logger),
		settings:   mgr,
		metrics:    m,
	}, nil
}

func (e *engine) Close() {
	e.prefetcher.Close()
	e.fetcher.Close()
	e.db.Close()
}

// Serve runs the media service until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = int(port)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := r.openEngine()
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer e.Close()

	e.settings.Subscribe(func(s settings.Settings) {
		r.logger.Info("settings changed", "bandcamp", s.Bandcamp, "youtube", s.YouTube, "cache_max_gb", s.CacheMaxGB, "max_parallel", s.MaxParallel)
	})

	if url := r.config.Redis.URL; url != "" {
		watcher, err := settings.NewRedisWatcher(url, r.config.Redis.Channel, e.settings, r.logger)
		if err != nil {
			return err
		}
		defer watcher.Close()

		go func() {
			if err := watcher.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("settings watcher stopped", "err", err)
			}
		}()
	}

	srv := server.New(r.config.Server, server.Deps{
		Media:   server.NewMediaHandler(e.store, e.fetcher, e.metrics, r.logger),
		API:     server.NewAPIHandler(e.fetcher, e.prefetcher, e.settings, r.logger),
		Admin:   server.NewAdminHandler(e.store, e.fetcher, e.settings, r.logger),
		Metrics: e.metrics.Handler(),
		Logger:  r.logger,
	})

	stats := e.store.Stats()
	r.logger.Info("media service starting",
		"addr", r.config.Server.Addr(),
		"cache", r.config.Cache.Dir,
		"entries", stats.Count,
		"size", shared.HumanBytes(stats.Size),
	)
	return srv.Run(ctx)
}
