package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tapedeck/internal/formatter"
	"github.com/desertthunder/tapedeck/internal/player"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// PlaylistShow lists the releases of a playlist file or URL.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	source := cmd.StringArg("source")
	if source == "" {
		return fmt.Errorf("%w: source", shared.ErrMissingArgument)
	}

	items, err := player.LoadPlaylist(ctx, source, r.httpClient)
	if err != nil {
		return err
	}

	var data []byte
	switch {
	case cmd.Bool("json"):
		if data, err = formatter.ToJSON(items); err != nil {
			return err
		}
	case cmd.Bool("markdown"):
		data = formatter.PlaylistToMarkdown(cmd.String("title"), items)
	default:
		data = formatter.PlaylistToText(items)
	}

	return r.writeTo(cmd.String("output"), data)
}
