package tubetap_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/000Volk000/TubeTap"
	"github.com/000Volk000/TubeTap/matchers/ytdlp"
)

func newInterpreter(dir string, exts []string, onProgress tubetap.ProgressFunc) *tubetap.Interpreter {
	return tubetap.NewInterpreter(ytdlp.NewRegistry(), dir, exts, onProgress)
}

func feed(i *tubetap.Interpreter, lines ...string) {
	for _, line := range lines {
		i.Feed(line)
	}
}

func TestInterpreter_ExtractAudioSupersedesDownload(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()
	i := newInterpreter(dir, tubetap.MediaAudio.Extensions(), nil)

	feed(i,
		"[youtube] abc: Downloading webpage",
		"[download] Destination: "+dir+"/Song.webm",
		"[download]  50.0% of 3.00MiB at 1.00MiB/s ETA 00:01",
		"[download] 100% of 3.00MiB in 00:00:02 at 1.50MiB/s",
		"[ExtractAudio] Destination: "+dir+"/Song.mp3",
		"Deleting original file "+dir+"/Song.webm (pass -k to keep)",
	)
	result := i.Finish(0, "")
	assert.True(result.Success)
	assert.True(result.Resolved())
	assert.Equal(filepath.Join(dir, "Song.mp3"), result.Path)
	assert.Equal("Song.mp3", result.Filename)
	assert.Equal(tubetap.SourceFinal, result.Source)
	assert.Equal("Song.mp3", i.Filename())
}

func TestInterpreter_FinalPrecedenceRegardlessOfOrder(t *testing.T) {
	assert := assert_.New(t)
	i := newInterpreter("/out", nil, nil)

	feed(i,
		`[Merger] Merging formats into "/out/My Video.mp4"`,
		"[download] Destination: /out/My Video.f137.mp4",
		"[download] Destination: /out/My Video.f140.m4a",
	)
	result := i.Finish(0, "")
	assert.Equal("/out/My Video.mp4", result.Path)
	assert.Equal(tubetap.SourceFinal, result.Source)
}

func TestInterpreter_CompletionRecordWins(t *testing.T) {
	assert := assert_.New(t)
	i := newInterpreter("/out", nil, nil)

	feed(i,
		"TUBETAP_FILE:/out/Final Name.mp3",
		"[ExtractAudio] Destination: /out/Other.mp3",
		"[MoveFiles] Moving file /tmp/a.mp3 to /out/Moved.mp3",
	)
	result := i.Finish(0, "")
	assert.Equal("/out/Final Name.mp3", result.Path)
	assert.Equal(tubetap.SourceRecord, result.Source)
}

func TestInterpreter_LastCaptureWins(t *testing.T) {
	assert := assert_.New(t)
	i := newInterpreter("/out", nil, nil)

	feed(i,
		"[download] Destination: /out/first.webm",
		"[download] Destination: /out/second.webm",
	)
	result := i.Finish(0, "")
	assert.Equal("/out/second.webm", result.Path)
	assert.Equal(tubetap.SourceCandidate, result.Source)
}

func TestInterpreter_QuotedRelativePath(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()
	i := newInterpreter(dir, tubetap.MediaAudio.Extensions(), nil)

	i.Feed(`[download] "Voice Memo.mp3" has already been downloaded`)
	result := i.Finish(0, "")
	assert.Equal(filepath.Join(dir, "Voice Memo.mp3"), result.Path)
	assert.Equal("Voice Memo.mp3", result.Filename)
	assert.Equal(tubetap.SourceCandidate, result.Source)
}

func TestInterpreter_FallbackScan(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)
	dir := t.TempDir()
	now := time.Now()
	for name, age := range map[string]time.Duration{"a.mp3": 2 * time.Hour, "b.mp3": time.Hour, "notes.txt": 0} {
		path := filepath.Join(dir, name)
		require.NoError(os.WriteFile(path, nil, 0644))
		require.NoError(os.Chtimes(path, now.Add(-age), now.Add(-age)))
	}
	i := newInterpreter(dir, tubetap.MediaAudio.Extensions(), nil)

	feed(i, "[youtube] abc: Downloading webpage", "some unrecognised line")
	result := i.Finish(0, "")
	assert.Equal(filepath.Join(dir, "b.mp3"), result.Path)
	assert.Equal(tubetap.SourceFallback, result.Source)
	assert.True(result.Resolved())
}

func TestInterpreter_Unresolved(t *testing.T) {
	assert := assert_.New(t)

	result := newInterpreter(t.TempDir(), tubetap.MediaAudio.Extensions(), nil).Finish(0, "")
	assert.True(result.Success)
	assert.Equal("", result.Path)
	assert.Equal(tubetap.SourceNone, result.Source)
	assert.False(result.Resolved())

	// A failing fallback scan is not an error
	result = newInterpreter(filepath.Join(t.TempDir(), "missing"), tubetap.MediaAudio.Extensions(), nil).Finish(0, "")
	assert.True(result.Success)
	assert.Equal("", result.Path)
}

func TestInterpreter_FailureDiscardsPath(t *testing.T) {
	assert := assert_.New(t)
	i := newInterpreter("/out", nil, nil)

	i.Feed("[download] Destination: /out/Song.webm")
	result := i.Finish(1, "ERROR: unable to download video data: HTTP Error 403: Forbidden")
	assert.False(result.Success)
	assert.Equal("", result.Path)
	assert.Equal(1, result.ExitCode)
	assert.Contains(result.Stderr, "403")
	assert.False(result.Resolved())
}

func TestInterpreter_Progress(t *testing.T) {
	assert := assert_.New(t)

	var events []tubetap.ProgressEvent
	var names []string
	i := newInterpreter("/out", nil, func(e tubetap.ProgressEvent, filename string) {
		events = append(events, e)
		names = append(names, filename)
	})

	feed(i,
		"[download]   1.0% of ~ 10.00MiB at  2.00MiB/s ETA 00:05 (frag 1/20)",
		"[download] Destination: /out/Song.webm",
		"[download] abc% of 10.00MiB at 2.00MiB/s ETA 00:05",
		"[download]  42.7% of 10.00MiB at 2.00MiB/s ETA 00:03",
	)
	// The malformed update is skipped
	if assert.Len(events, 2) {
		assert.Equal(1.0, events[0].Percent)
		assert.Equal("10.00MiB", events[0].Total)
		assert.Equal(42, events[1].WholePercent())
		assert.Equal("00:03", events[1].ETA)
	}
	assert.Equal([]string{"", "Song.webm"}, names)
}

func TestInterpreter_Consume(t *testing.T) {
	assert := assert_.New(t)

	var percents []int
	i := newInterpreter("/out", nil, func(e tubetap.ProgressEvent, _ string) {
		percents = append(percents, e.WholePercent())
	})
	output := "[download] Destination: /out/a.webm\r\n" +
		"[download]  10.0% of 1.00MiB\r[download]  20.0% of 1.00MiB\r" +
		"[download] 100% of 1.00MiB\n" +
		"[ExtractAudio] Destination: /out/a.mp3"
	assert.NoError(i.Consume(strings.NewReader(output)))
	assert.Equal([]int{10, 20, 100}, percents)
	assert.Equal("/out/a.mp3", i.Finish(0, "").Path)
}

func TestNewRequestInterpreter(t *testing.T) {
	assert := assert_.New(t)
	cfg := tubetap.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	req, err := tubetap.NewDownloadRequest("https://youtu.be/abc", "720", tubetap.MediaVideo)
	require_.NoError(t, err)

	i := tubetap.NewRequestInterpreter(ytdlp.NewRegistry(), &cfg, req, nil)
	i.Feed("[download] Clip.mp4 has already been downloaded")
	assert.Equal(filepath.Join(cfg.BaseDir, "Videos", "Clip.mp4"), i.Finish(0, "").Path)
}
