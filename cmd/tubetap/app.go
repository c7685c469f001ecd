package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/000Volk000/TubeTap"
	"github.com/000Volk000/TubeTap/internal/boltdb"
	"github.com/000Volk000/TubeTap/internal/history"
	"github.com/000Volk000/TubeTap/internal/sqlitedb"
)

const (
	exitFailure   = 1
	exitBadUsage  = 2
	resultPrefix  = "DOWNLOADED_FILE:"
	defaultListen = ":5000"
	// Used for audio batches and playlists when no bitrate is given.
	defaultAudioBitrate = "192"
)

type application struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	level  *zap.AtomicLevel
}

func (a *application) cliApp() *cli.App {
	defaults := tubetap.DefaultConfig()
	return &cli.App{
		Name:      "tubetap",
		Usage:     "download audio and video with yt-dlp",
		Reader:    a.stdin,
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-dir",
				Value:   defaults.BaseDir,
				Usage:   "save downloads under `DIR`",
				EnvVars: []string{"TUBETAP_BASE_DIR"},
			},
			&cli.StringFlag{
				Name:    "yt-dlp",
				Value:   defaults.Binary,
				Usage:   "download tool `PATH`",
				EnvVars: []string{"TUBETAP_YT_DLP"},
			},
			&cli.StringFlag{
				Name:    "history",
				Usage:   "record downloads in `FILE` (.sqlite/.sqlite3 for SQLite, anything else for bbolt)",
				EnvVars: []string{"TUBETAP_HISTORY"},
			},
			&cli.BoolFlag{
				Name:  "no-completion-record",
				Usage: "don't ask the download tool to print the final file path",
			},
			&cli.BoolFlag{
				Name:  "plain-progress",
				Usage: "show progress as a single rewritten line instead of a progress bar",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") && a.level != nil {
				a.level.SetLevel(zap.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			a.downloadCommand(),
			a.audioCommand(),
			a.videoCommand(),
			a.batchCommand(),
			a.playlistCommand(),
			a.interactiveCommand(),
			a.historyCommand(),
			a.serveCommand(),
		},
		OnUsageError: onUsageError,
		// Exit codes are handled in main
		ExitErrHandler:  func(*cli.Context, error) {},
		HideHelpCommand: true,
	}
}

// exitCode maps an error returned by the app to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return exitFailure
}

func onUsageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), exitBadUsage)
}

func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitBadUsage)
}

func failure(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitFailure)
}

func (a *application) config(c *cli.Context) (tubetap.Config, error) {
	cfg := tubetap.DefaultConfig()
	cfg.BaseDir = c.String("base-dir")
	cfg.Binary = c.String("yt-dlp")
	cfg.CompletionRecord = !c.Bool("no-completion-record")
	if err := cfg.Validate(); err != nil {
		return cfg, usageError("invalid configuration: %v", err)
	}
	return cfg, nil
}

func (a *application) downloader(c *cli.Context, cfg tubetap.Config, progress *progressDisplay) (tubetap.Downloader, error) {
	builder := tubetap.NewDownloaderBuilder().
		WithConfig(cfg).
		WithLogger(tubetap.Logger(c.Context))
	if progress != nil {
		builder = builder.WithProgressCallback(progress.Update)
	}
	d, err := builder.Build()
	if err != nil {
		return nil, usageError("%v", err)
	}
	return d, nil
}

// openHistory opens the history database named by --history, or a NilStore if there is none.
func (a *application) openHistory(c *cli.Context) (history.Store, error) {
	path := c.String("history")
	switch history.BackendForPath(path) {
	case history.BackendSQLite:
		db, err := sqlitedb.New(path, tubetap.Logger(c.Context))
		if err != nil {
			return nil, failure("failed to open history: %v", err)
		}
		return db, nil
	case history.BackendBolt:
		db, err := boltdb.New(path)
		if err != nil {
			return nil, failure("failed to open history: %v", err)
		}
		return db, nil
	default:
		return history.NilStore{}, nil
	}
}
