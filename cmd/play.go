package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/platform"
	"github.com/desertthunder/tapedeck/internal/player"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
	"github.com/desertthunder/tapedeck/internal/ui"
)

// Play loads a playlist and runs the terminal player against the media service.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	source := cmd.StringArg("source")
	if source == "" {
		return fmt.Errorf("%w: source", shared.ErrMissingArgument)
	}

	items, err := player.LoadPlaylist(ctx, source, r.httpClient)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs go to a file.
	logFile, err := os.OpenFile(cmd.String("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	logger := shared.NewLogger(logFile)
	shared.SetLogLevel(logger, r.logger.GetLevel())

	enablement := r.enablement(ctx, logger)
	policy := player.PolicyFromDelays(r.config.Player.Delays())
	if cmd.Bool("single-retry") {
		policy = player.SingleRetry
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := player.RealClock()
	loop := player.NewLoop()
	updates := make(chan player.Snapshot, 1)

	orch := player.NewOrchestrator(items, player.OrchestratorOptions{
		Loop:  loop,
		Clock: clock,
		Source: player.ServiceSource{
			Resolver: r.api,
			Prefetch: !cmd.Bool("no-prefetch"),
		},
		NewMedia: func(p models.Platform) player.Media {
			if p.CacheBacked() {
				return player.NewStreamMedia(r.api, clock, 0)
			}
			return player.NewStreamMedia(nil, clock, 0)
		},
		Policy:     policy,
		Enablement: enablement,
		Logger:     logger,
		OnChange:   ui.Notifier(updates),
	})

	logger.Info("starting player", "source", source, "items", len(items), "bandcamp", enablement.Direct, "youtube", enablement.CacheBacked)

	if poll := cmd.Duration("poll"); poll > 0 {
		go r.pollPlatforms(ctx, loop, orch, enablement, poll, logger)
	}

	return ui.Run(ctx, loop, orch, items, updates)
}

// enablement asks the server which platforms are enabled, falling back to the config file.
func (r *Runner) enablement(ctx context.Context, logger *log.Logger) platform.Enablement {
	status, err := r.api.Platforms(ctx)
	if err != nil {
		logger.Warn("platform status unavailable, using config", "err", err)
		return settings.FromConfig(r.config).Enablement()
	}
	return platform.Enablement{Direct: status.Bandcamp, CacheBacked: status.YouTube}
}

// pollPlatforms pushes enablement changes made on the server into the running orchestrator.
func (r *Runner) pollPlatforms(ctx context.Context, loop *player.Loop, orch *player.Orchestrator, last platform.Enablement, every time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := r.api.Platforms(ctx)
		if err != nil {
			logger.Debug("platform poll failed", "err", err)
			continue
		}

		next := platform.Enablement{Direct: status.Bandcamp, CacheBacked: status.YouTube}
		if next == last {
			continue
		}
		last = next

		logger.Info("platform enablement changed", "bandcamp", next.Direct, "youtube", next.CacheBacked)
		loop.Post(func() { orch.SetEnablement(next) })
	}
}
