// Package ytdlp provides the matchers for the textual output of yt-dlp. Importing it registers them with
// tubetap.DefaultMatcherRegistry.
package ytdlp

import (
	"regexp"
	"strings"

	"github.com/000Volk000/TubeTap"
)

const (
	NameCompletionRecord    = "completion-record"
	NameFinalDestination    = "final-destination"
	NameDownloadDestination = "download-destination"
	NameAlreadyDownloaded   = "already-downloaded"
	NameProgress            = "progress"
)

const (
	PriorityCompletionRecord int16 = iota - 2
	PriorityFinalDestination
	PriorityDownloadDestination
	PriorityAlreadyDownloaded
	PriorityProgress
)

var (
	completionRecordPattern = regexp.MustCompile(`^\s*` + regexp.QuoteMeta(tubetap.CompletionRecordPrefix) + `(.+?)\s*$`)
	// Post-processors that announce the artifact that remains once they have run.
	finalDestinationPattern = regexp.MustCompile(
		`^\s*\[(?:ExtractAudio|VideoConvertor|VideoRemuxer)\]\s+Destination:\s+(.+?)\s*$` +
			`|^\s*\[Merger\]\s+Merging formats into\s+(.+?)\s*$` +
			`|^\s*\[MoveFiles\]\s+Moving file\s+(?:"[^"]*"|\S+)\s+to\s+(.+?)\s*$`,
	)
	downloadDestinationPattern = regexp.MustCompile(`^\s*\[download\]\s+Destination:\s+(.+?)\s*$`)
	alreadyDownloadedPattern   = regexp.MustCompile(`^\s*\[download\]\s+(.+?)\s+has already been downloaded`)
	// e.g. "[download]  42.3% of ~  3.21MiB at  1.05MiB/s ETA 00:03 (frag 2/9)"
	progressPattern = regexp.MustCompile(
		`^\s*\[download\]\s+(\S+)%` +
			`(?:\s+of\s+~?\s*(\S+))?` +
			`(?:\s+in\s+\S+)?` +
			`(?:\s+at\s+(\S+))?` +
			`(?:\s+ETA\s+(\S+))?`,
	)
)

// Matchers returns the yt-dlp matchers in priority order.
func Matchers() []tubetap.Matcher {
	return []tubetap.Matcher{
		{
			Name:     NameCompletionRecord,
			Pattern:  completionRecordPattern,
			Extract:  pathExtractor(tubetap.PathRecord),
			Priority: PriorityCompletionRecord,
		},
		{
			Name:     NameFinalDestination,
			Pattern:  finalDestinationPattern,
			Extract:  pathExtractor(tubetap.PathFinal),
			Priority: PriorityFinalDestination,
		},
		{
			Name:     NameDownloadDestination,
			Pattern:  downloadDestinationPattern,
			Extract:  pathExtractor(tubetap.PathCandidate),
			Priority: PriorityDownloadDestination,
		},
		{
			Name:     NameAlreadyDownloaded,
			Pattern:  alreadyDownloadedPattern,
			Extract:  pathExtractor(tubetap.PathCandidate),
			Priority: PriorityAlreadyDownloaded,
		},
		{
			Name:     NameProgress,
			Pattern:  progressPattern,
			Extract:  extractProgress,
			Priority: PriorityProgress,
		},
	}
}

// Register adds the yt-dlp matchers to r.
func Register(r *tubetap.MatcherRegistry) error {
	for _, m := range Matchers() {
		if err := r.Add(m); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding only the yt-dlp matchers.
func NewRegistry() *tubetap.MatcherRegistry {
	r := &tubetap.MatcherRegistry{}
	for _, m := range Matchers() {
		r.MustAdd(m)
	}
	return r
}

// pathExtractor uses the first non-empty capture group as the path, so alternations can each capture their own.
func pathExtractor(kind tubetap.PathKind) tubetap.ExtractFunc {
	return func(groups []string) (tubetap.Event, error) {
		for _, g := range groups[1:] {
			if g = strings.TrimSpace(g); g != "" {
				return tubetap.PathEvent{Path: tubetap.StripQuotes(g), Kind: kind}, nil
			}
		}
		return tubetap.PathEvent{Kind: kind}, nil
	}
}

func extractProgress(groups []string) (tubetap.Event, error) {
	event, err := tubetap.NewProgressEvent(groups[1], groups[2], groups[3], groups[4])
	if err != nil {
		return nil, err
	}
	return event, nil
}

func init() {
	for _, m := range Matchers() {
		tubetap.DefaultMatcherRegistry.MustAdd(m)
	}
}
