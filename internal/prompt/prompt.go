// Package prompt asks the user what to download through a short sequence of numbered menus.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/000Volk000/TubeTap"
)

var (
	ErrNoURLs           = errors.New("no URLs to download")
	ErrNoPlaylistSource = errors.New("playlists are not supported")
)

var (
	VideoHeights   = []string{"144", "240", "360", "480", "720", "1080"}
	AudioBitrates  = []string{"128", "192", "256", "320"}
	sourceOptions  = []string{"Playlist", "Link or .txt file"}
	mediaOptions   = []string{"Video (.mp4)", "Audio (.mp3)"}
	invalidMessage = "Invalid choice, try again."
)

// Selection is what the user chose to download. The URLs are as entered or listed, not yet validated.
type Selection struct {
	URLs    []string
	Kind    tubetap.MediaKind
	Quality string
}

type PlaylistExpander func(ctx context.Context, url string) ([]string, error)

type ListReader func(path string) ([]string, error)

type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	log     *zap.SugaredLogger

	// ExpandPlaylist turns a playlist URL into the URLs of its entries. Without it the playlist option fails.
	ExpandPlaylist PlaylistExpander
	// ReadList reads a URL list file; tubetap.ReadURLListFile by default.
	ReadList ListReader
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		scanner:  bufio.NewScanner(in),
		out:      out,
		log:      zap.S().Named("prompt"),
		ReadList: tubetap.ReadURLListFile,
	}
}

// Run asks for the source, media kind and quality. Invalid answers are asked again; running out of input part way
// through is io.ErrUnexpectedEOF.
func (p *Prompter) Run(ctx context.Context) (Selection, error) {
	urls, err := p.askURLs(ctx)
	if err != nil {
		return Selection{}, err
	}
	if len(urls) == 0 {
		return Selection{}, ErrNoURLs
	}

	kind := tubetap.MediaVideo
	options := VideoHeights
	label := "Available resolutions"
	choice, err := p.Choose("Media type", mediaOptions)
	if err != nil {
		return Selection{}, err
	}
	if choice == 2 {
		kind = tubetap.MediaAudio
		options = AudioBitrates
		label = "Available bitrates"
	}

	quality, err := p.askQuality(label, kind, options)
	if err != nil {
		return Selection{}, err
	}
	p.log.Debugw("prompt complete", "urls", len(urls), "kind", kind, "quality", quality)
	return Selection{URLs: urls, Kind: kind, Quality: quality}, nil
}

func (p *Prompter) askURLs(ctx context.Context) ([]string, error) {
	choice, err := p.Choose("Download a playlist or a link/list file", sourceOptions)
	if err != nil {
		return nil, err
	}
	if choice == 1 {
		url, err := p.Ask("Playlist URL")
		if err != nil {
			return nil, err
		}
		if p.ExpandPlaylist == nil {
			return nil, ErrNoPlaylistSource
		}
		return p.ExpandPlaylist(ctx, url)
	}

	input, err := p.Ask("Link or .txt file")
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(input), ".txt") {
		urls, err := p.ReadList(input)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input, err)
		}
		return urls, nil
	}
	return []string{input}, nil
}

// askQuality accepts either the number of a listed option or the option itself, with or without its unit.
func (p *Prompter) askQuality(label string, kind tubetap.MediaKind, options []string) (string, error) {
	unit := "p"
	if kind == tubetap.MediaAudio {
		unit = "K"
	}
	p.printf("%s:\n", label)
	for i, o := range options {
		p.printf("%d. %s%s\n", i+1, o, unit)
	}
	for {
		answer, err := p.Ask("Quality")
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		if q, err := tubetap.NormalizeQuality(answer, kind); err == nil {
			for _, o := range options {
				if o == q {
					return q, nil
				}
			}
		}
		p.printf("%s\n", invalidMessage)
	}
}

// Choose shows a numbered menu and returns the 1-based number of the chosen option.
func (p *Prompter) Choose(question string, options []string) (int, error) {
	p.printf("%s:\n", question)
	for i, o := range options {
		p.printf("%d. %s\n", i+1, o)
	}
	for {
		answer, err := p.Ask(fmt.Sprintf("Option (1-%d)", len(options)))
		if err != nil {
			return 0, err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
			return n, nil
		}
		p.printf("%s\n", invalidMessage)
	}
}

// Ask returns the next non-blank line of input, trimmed.
func (p *Prompter) Ask(question string) (string, error) {
	for {
		p.printf("%s: ", question)
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return "", err
			}
			p.printf("\n")
			return "", io.ErrUnexpectedEOF
		}
		if answer := strings.TrimSpace(p.scanner.Text()); answer != "" {
			return answer, nil
		}
	}
}

func (p *Prompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
