// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func localFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "local",
		Usage: "Operate on the cache and database directly instead of the running server",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// serveCommand runs the media service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the media service (cache, downloads, admin API)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides [server] port)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand initializes local state
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration, database and yt-dlp",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration to --config",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "ytdlp",
				Usage:  "Download a managed yt-dlp binary",
				Action: r.SetupYTDLP,
			},
		},
	}
}

// cacheCommand handles cache administration
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and clean the media cache",
		Commands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Show cache and download statistics",
				Flags:  []cli.Flag{localFlag(), jsonFlag()},
				Action: r.CacheStats,
			},
			{
				Name:  "list",
				Usage: "List cached entries, least recently used first",
				Flags: []cli.Flag{
					localFlag(),
					jsonFlag(),
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output CSV",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached entry",
				Flags:  []cli.Flag{localFlag()},
				Action: r.CacheClear,
			},
			{
				Name:  "rm",
				Usage: "Remove one cached entry",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "key",
					},
				},
				Flags:  []cli.Flag{localFlag()},
				Action: r.CacheRemove,
			},
			{
				Name:  "evict",
				Usage: "Remove entries not played recently",
				Flags: []cli.Flag{
					localFlag(),
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Remove entries last accessed before this long ago",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: r.CacheEvict,
			},
		},
	}
}

// fetchCommand resolves and downloads from the upstream platform
func fetchCommand(r *Runner) *cli.Command {
	collectionFlag := func() cli.Flag {
		return &cli.BoolFlag{
			Name:  "collection",
			Usage: "Treat the locator as a playlist",
		}
	}

	return &cli.Command{
		Name:  "fetch",
		Usage: "Resolve and download YouTube media",
		Commands: []*cli.Command{
			{
				Name:  "resolve",
				Usage: "List the tracks behind a locator",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "locator",
					},
				},
				Flags: []cli.Flag{
					localFlag(),
					jsonFlag(),
					collectionFlag(),
					&cli.BoolFlag{
						Name:  "prefetch",
						Usage: "Ask the server to start downloading the tracks",
					},
				},
				Action: r.FetchResolve,
			},
			{
				Name:  "download",
				Usage: "Download every track behind a locator into the local cache",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "locator",
					},
				},
				Flags:  []cli.Flag{collectionFlag()},
				Action: r.FetchDownload,
			},
		},
	}
}

// settingsCommand reads and changes the admin settings
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change the cache budget and platform switches",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the settings in effect",
				Flags:  []cli.Flag{localFlag(), jsonFlag()},
				Action: r.SettingsShow,
			},
			{
				Name:  "set",
				Usage: "Change one or more settings",
				Flags: []cli.Flag{
					localFlag(),
					jsonFlag(),
					&cli.FloatFlag{
						Name:  "cache-max-gb",
						Usage: "Cache budget in GB (0.1 to 100)",
					},
					&cli.IntFlag{
						Name:  "max-parallel",
						Usage: "Concurrent downloads (1 to 10)",
					},
					&cli.BoolFlag{
						Name:  "bandcamp",
						Usage: "Enable Bandcamp playback",
					},
					&cli.BoolFlag{
						Name:  "youtube",
						Usage: "Enable YouTube playback",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "Publish the change on the Redis settings channel instead of calling the API",
					},
				},
				Action: r.SettingsSet,
			},
		},
	}
}

// playlistCommand inspects playlist files
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlist",
		Usage: "Inspect playlist files",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "List the releases of a playlist file or URL",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "source",
					},
				},
				Flags: []cli.Flag{
					jsonFlag(),
					&cli.BoolFlag{
						Name:  "markdown",
						Usage: "Output Markdown",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Markdown heading",
						Value: "Playlist",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.PlaylistShow,
			},
		},
	}
}

// playCommand launches the terminal player
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Play a playlist in the terminal",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "source",
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "single-retry",
				Usage: "Retry a pending track once instead of following [player] retry_delays",
			},
			&cli.BoolFlag{
				Name:  "no-prefetch",
				Usage: "Do not ask the server to download upcoming tracks",
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "How often to refresh platform enablement from the server",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where player logs go while the terminal UI is running",
				Value: "tapedeck-play.log",
			},
		},
		Action: r.Play,
	}
}
