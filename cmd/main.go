package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})
	app := runner.app()

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}

// app builds the root command. Global flags are read by every subcommand.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "tapedeck",
		Usage:   "Cache, serve and play Bandcamp and YouTube music",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Media service URL (defaults to [player] server_url)",
			},
			&cli.StringFlag{
				Name:    "admin-token",
				Usage:   "Token for admin endpoints (defaults to [server] admin_token)",
				Sources: cli.EnvVars("TAPEDECK_ADMIN_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (defaults to [log] level)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, r.configure(cmd)
		},
		Commands: r.register(),
	}
}
