package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/repositories"
	"github.com/desertthunder/tapedeck/internal/settings"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// localSettings opens the settings manager over the database without touching the cache, so it
// is safe next to a running server. Budget changes take effect on the server's next start.
func (r *Runner) localSettings(fn func(m *settings.Manager) error) error {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mgr, err := settings.NewManager(settings.FromConfig(r.config), nil, repositories.NewSettingsRepository(db), r.logger)
	if err != nil {
		return err
	}
	return fn(mgr)
}

func (r *Runner) writeSettings(s settings.Settings, asJSON bool) error {
	if asJSON {
		return r.writeJSON(s, true)
	}

	enabled := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}
	r.writePlain("Cache budget: %.1f GB\n", s.CacheMaxGB)
	if s.MaxParallel > 0 {
		r.writePlain("Downloads:    %d at a time\n", s.MaxParallel)
	}
	r.writePlain("Bandcamp:     %s\n", enabled(s.Bandcamp))
	return r.writePlain("YouTube:      %s\n", enabled(s.YouTube))
}

// SettingsShow prints the settings in effect.
func (r *Runner) SettingsShow(ctx context.Context, cmd *cli.Command) error {
	var current settings.Settings

	if cmd.Bool("local") {
		err := r.localSettings(func(m *settings.Manager) error {
			current = m.Current()
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		remote, err := r.api.Settings(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch settings: %w", err)
		}
		current = *remote
	}

	return r.writeSettings(current, cmd.Bool("json"))
}

func patchFromFlags(cmd *cli.Command) (settings.Patch, error) {
	var patch settings.Patch

	if cmd.IsSet("cache-max-gb") {
		gb := cmd.Float("cache-max-gb")
		if err := shared.ValidateCacheSizeGB(gb); err != nil {
			return patch, err
		}
		patch.CacheMaxGB = &gb
	}
	if cmd.IsSet("max-parallel") {
		n := int(cmd.Int("max-parallel"))
		if err := shared.ValidateMaxParallel(n); err != nil {
			return patch, err
		}
		patch.MaxParallel = &n
	}
	if cmd.IsSet("bandcamp") {
		on := cmd.Bool("bandcamp")
		patch.Bandcamp = &on
	}
	if cmd.IsSet("youtube") {
		on := cmd.Bool("youtube")
		patch.YouTube = &on
	}

	if patch.Empty() {
		return patch, fmt.Errorf("%w: one of --cache-max-gb, --max-parallel, --bandcamp or --youtube", shared.ErrMissingArgument)
	}
	return patch, nil
}

// SettingsSet applies a partial settings change through the API, the database or Redis.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	patch, err := patchFromFlags(cmd)
	if err != nil {
		return err
	}

	switch {
	case cmd.Bool("publish"):
		if r.config.Redis.URL == "" {
			return fmt.Errorf("%w: [redis] url is required to publish", shared.ErrMissingConfig)
		}
		watcher, err := settings.NewRedisWatcher(r.config.Redis.URL, r.config.Redis.Channel, nil, r.logger)
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.Publish(ctx, patch); err != nil {
			return err
		}
		return r.writePlain("✓ Settings change published\n")

	case cmd.Bool("local"):
		return r.localSettings(func(m *settings.Manager) error {
			next, err := m.ApplyPatch(patch)
			if err != nil {
				return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
			}
			return r.writeSettings(next, cmd.Bool("json"))
		})

	default:
		next, err := r.api.UpdateSettings(ctx, patch)
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		return r.writeSettings(*next, cmd.Bool("json"))
	}
}
