package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/000Volk000/TubeTap"
	"github.com/000Volk000/TubeTap/internal/prompt"
)

func kindQualityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "kind",
			Aliases: []string{"k"},
			Value:   string(tubetap.MediaVideo),
			Usage:   "download `KIND` (audio or video)",
		},
		&cli.StringFlag{
			Name:    "quality",
			Aliases: []string{"q"},
			Usage:   "video height or audio bitrate (default 720 for video, " + defaultAudioBitrate + " for audio)",
		},
	}
}

func (a *application) downloadCommand() *cli.Command {
	return &cli.Command{
		Name:         "download",
		Usage:        "download one URL, inferring the media kind from the quality (720p, 192K)",
		ArgsUsage:    "URL [QUALITY]",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 || c.NArg() > 2 {
				return usageError("expected URL [QUALITY]")
			}
			kind, quality, err := tubetap.ParseQualityToken(c.Args().Get(1))
			if err != nil {
				return usageError("%v", err)
			}
			return a.single(c, c.Args().Get(0), quality, kind)
		},
	}
}

func (a *application) audioCommand() *cli.Command {
	return &cli.Command{
		Name:         "audio",
		Usage:        "extract the audio of one URL as mp3",
		ArgsUsage:    "URL BITRATE",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return usageError("expected URL BITRATE")
			}
			return a.single(c, c.Args().Get(0), c.Args().Get(1), tubetap.MediaAudio)
		},
	}
}

func (a *application) videoCommand() *cli.Command {
	return &cli.Command{
		Name:         "video",
		Usage:        "download one URL as video of at most the given height",
		ArgsUsage:    "URL HEIGHT",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return usageError("expected URL HEIGHT")
			}
			return a.single(c, c.Args().Get(0), c.Args().Get(1), tubetap.MediaVideo)
		},
	}
}

func (a *application) batchCommand() *cli.Command {
	return &cli.Command{
		Name:         "batch",
		Usage:        "download every URL of a newline-delimited list file",
		ArgsUsage:    "FILE",
		Flags:        kindQualityFlags(),
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError("expected FILE")
			}
			kind, quality, err := kindAndQuality(c)
			if err != nil {
				return err
			}
			urls, err := tubetap.ReadURLListFile(c.Args().First())
			if err != nil {
				return usageError("%v", err)
			}
			return a.runURLs(c, urls, quality, kind)
		},
	}
}

func (a *application) playlistCommand() *cli.Command {
	return &cli.Command{
		Name:         "playlist",
		Usage:        "download every entry of a playlist",
		ArgsUsage:    "URL",
		Flags:        kindQualityFlags(),
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError("expected URL")
			}
			kind, quality, err := kindAndQuality(c)
			if err != nil {
				return err
			}
			cfg, err := a.config(c)
			if err != nil {
				return err
			}
			urls, err := tubetap.ExpandPlaylist(c.Context, &cfg, c.Args().First())
			if err != nil {
				return failure("failed to expand playlist: %v", err)
			}
			return a.runURLs(c, urls, quality, kind)
		},
	}
}

func (a *application) interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:         "interactive",
		Usage:        "choose what to download from a series of menus",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			cfg, err := a.config(c)
			if err != nil {
				return err
			}
			p := prompt.New(a.stdin, a.stderr)
			p.ExpandPlaylist = func(ctx context.Context, url string) ([]string, error) {
				return tubetap.ExpandPlaylist(ctx, &cfg, url)
			}
			sel, err := p.Run(c.Context)
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, prompt.ErrNoURLs) {
				return usageError("%v", err)
			} else if err != nil {
				return failure("%v", err)
			}
			return a.runURLs(c, sel.URLs, sel.Quality, sel.Kind)
		},
	}
}

func kindAndQuality(c *cli.Context) (tubetap.MediaKind, string, error) {
	kind, err := tubetap.ParseMediaKind(c.String("kind"))
	if err != nil {
		return "", "", usageError("%v", err)
	}
	quality := c.String("quality")
	if quality == "" && kind == tubetap.MediaAudio {
		quality = defaultAudioBitrate
	}
	quality, err = tubetap.NormalizeQuality(quality, kind)
	if err != nil {
		return "", "", usageError("%v", err)
	}
	return kind, quality, nil
}

func (a *application) single(c *cli.Context, url string, quality string, kind tubetap.MediaKind) error {
	req, err := tubetap.NewDownloadRequest(url, quality, kind)
	if err != nil {
		return usageError("%v", err)
	}
	return a.run(c, []tubetap.DownloadRequest{req})
}

// run downloads reqs in order, printing the path of each completed download on stdout.
func (a *application) run(c *cli.Context, reqs []tubetap.DownloadRequest) error {
	return a.runBatch(c, len(reqs), func(b *tubetap.Batch) []tubetap.BatchItem {
		return b.Run(c.Context, reqs)
	})
}

// runURLs is run for list entries, where an invalid entry fails on its own without stopping the rest.
func (a *application) runURLs(c *cli.Context, urls []string, quality string, kind tubetap.MediaKind) error {
	return a.runBatch(c, len(urls), func(b *tubetap.Batch) []tubetap.BatchItem {
		return b.RunURLs(c.Context, urls, quality, kind)
	})
}

func (a *application) runBatch(c *cli.Context, total int, run func(b *tubetap.Batch) []tubetap.BatchItem) error {
	cfg, err := a.config(c)
	if err != nil {
		return err
	}
	progress := newProgressDisplay(a.stderr, c.Bool("plain-progress"))
	d, err := a.downloader(c, cfg, progress)
	if err != nil {
		return err
	}
	store, err := a.openHistory(c)
	if err != nil {
		return err
	}
	defer store.Close()

	log := tubetap.Logger(c.Context).Sugar()
	batch := &tubetap.Batch{
		Downloader: d,
		History:    store,
		OnItem: func(_ int, item tubetap.BatchItem) {
			progress.Done()
			if item.Err != nil {
				_, _ = fmt.Fprintf(a.stderr, "\033[31mDownload failed: %v\033[0m\n", item.Err)
				return
			}
			if !item.Result.Resolved() {
				log.Warnw("download finished but the file could not be found", "url", item.URL)
			} else {
				_, _ = fmt.Fprintf(a.stderr, "\033[32mDownload completed successfully\033[0m\n")
			}
			_, _ = fmt.Fprintf(a.stdout, "%s%s\n", resultPrefix, item.Result.Path)
		},
	}
	items := run(batch)

	failed := 0
	var last error
	for _, item := range items {
		if item.Err != nil {
			failed++
			last = item.Err
		}
	}
	if err := c.Context.Err(); err != nil {
		return failure("interrupted after %d of %d downloads", len(items), total)
	}
	switch {
	case failed == 0:
		return nil
	case total == 1:
		return failure("%v", last)
	default:
		return failure("%d of %d downloads failed", failed, total)
	}
}
