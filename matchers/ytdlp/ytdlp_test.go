package ytdlp

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/000Volk000/TubeTap"
)

func TestNewRegistry(t *testing.T) {
	assert := assert_.New(t)

	r := NewRegistry()
	assert.Equal([]string{
		NameCompletionRecord,
		NameFinalDestination,
		NameDownloadDestination,
		NameAlreadyDownloaded,
		NameProgress,
	}, r.List())

	// Registering twice collides on names
	assert.ErrorIs(Register(r), tubetap.ErrDuplicateMatcher)
	assert.Equal(r.List(), tubetap.DefaultMatcherRegistry.List())
}

func TestMatchers_Paths(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		line    string
		matcher string
		path    string
		kind    tubetap.PathKind
	}{
		{tubetap.CompletionRecordPrefix + "/out/Song.mp3", NameCompletionRecord, "/out/Song.mp3", tubetap.PathRecord},
		{"[ExtractAudio] Destination: /out/Song.mp3", NameFinalDestination, "/out/Song.mp3", tubetap.PathFinal},
		{"[VideoConvertor] Destination: /out/Clip.mp4", NameFinalDestination, "/out/Clip.mp4", tubetap.PathFinal},
		{`[Merger] Merging formats into "/out/My Clip.mp4"`, NameFinalDestination, "/out/My Clip.mp4", tubetap.PathFinal},
		{`[MoveFiles] Moving file "/tmp/a b.mp3" to "/out/a b.mp3"`, NameFinalDestination, "/out/a b.mp3", tubetap.PathFinal},
		{"[download] Destination: /out/Song.webm", NameDownloadDestination, "/out/Song.webm", tubetap.PathCandidate},
		{"[download] /out/Song.mp3 has already been downloaded", NameAlreadyDownloaded, "/out/Song.mp3", tubetap.PathCandidate},
		{`[download] "Song 2.mp3" has already been downloaded and converted`, NameAlreadyDownloaded, "Song 2.mp3", tubetap.PathCandidate},
	}
	for _, c := range cases {
		t.Run(c.matcher, func(t *testing.T) {
			assert := assert_.New(t)
			match, ok := r.Match(c.line)
			if assert.True(ok, c.line) {
				assert.Equal(c.matcher, match.MatcherName)
				assert.NoError(match.Err)
				assert.Equal(tubetap.PathEvent{Path: c.path, Kind: c.kind}, match.Event)
			}
		})
	}
}

func TestMatchers_Progress(t *testing.T) {
	assert := assert_.New(t)
	r := NewRegistry()

	match, ok := r.Match("[download]  42.0% of ~  3.21MiB at  1.05MiB/s ETA 00:03 (frag 2/9)")
	if assert.True(ok) {
		assert.Equal(NameProgress, match.MatcherName)
		assert.Equal(tubetap.ProgressEvent{Percent: 42, Total: "3.21MiB", Rate: "1.05MiB/s", ETA: "00:03"}, match.Event)
	}

	match, ok = r.Match("[download] 100% of 3.21MiB in 00:00:02 at 1.52MiB/s")
	if assert.True(ok) {
		assert.Equal(tubetap.ProgressEvent{Percent: 100, Total: "3.21MiB", Rate: "1.52MiB/s"}, match.Event)
	}

	match, ok = r.Match("[download]   7.5%")
	if assert.True(ok) {
		assert.Equal(tubetap.ProgressEvent{Percent: 7.5}, match.Event)
	}

	// Recognised as progress but unparseable
	match, ok = r.Match("[download] Unknown% of Unknown size")
	if assert.True(ok) {
		assert.Equal(NameProgress, match.MatcherName)
		assert.ErrorIs(match.Err, tubetap.ErrInvalidPercent)
		assert.Nil(match.Event)
	}
}

func TestMatchers_Unmatched(t *testing.T) {
	assert := assert_.New(t)
	r := NewRegistry()

	for _, line := range []string{
		"",
		"[youtube] dQw4w9WgXcQ: Downloading webpage",
		"[info] dQw4w9WgXcQ: Downloading 1 format(s): 251",
		"Deleting original file /out/Song.webm (pass -k to keep)",
	} {
		_, ok := r.Match(line)
		assert.False(ok, line)
	}
}
