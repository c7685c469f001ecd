package tubetap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/000Volk000/TubeTap/internal/history"
)

// BatchItem is the outcome of one entry of a batch. URL is the entry as given; Request is only valid if the entry
// could be turned into a request, otherwise Err says why not.
type BatchItem struct {
	URL     string
	Request DownloadRequest
	Result  DownloadResult
	Err     error
}

// OK is true if the item downloaded and its file path is known.
func (i BatchItem) OK() bool {
	return i.Err == nil && i.Result.Resolved()
}

// Batch runs requests one after another, in order, each to completion before the next starts.
type Batch struct {
	Downloader Downloader
	// History, if set, receives a record of every item.
	History history.Store
	// OnItem, if set, is called after each item completes.
	OnItem func(index int, item BatchItem)
}

// Run downloads every request in order. A failed item does not stop the batch; every item's outcome is returned.
// Only cancellation of ctx ends the batch early, in which case the remaining requests are not attempted.
func (b *Batch) Run(ctx context.Context, reqs []DownloadRequest) []BatchItem {
	entries := make([]BatchItem, 0, len(reqs))
	for _, req := range reqs {
		entries = append(entries, BatchItem{URL: req.URL(), Request: req})
	}
	return b.run(ctx, entries)
}

// RunURLs is Run for URLs that all share one kind and quality. An entry that is not a valid request becomes a failed
// item of its own, and the rest of the batch still runs.
func (b *Batch) RunURLs(ctx context.Context, urls []string, quality string, kind MediaKind) []BatchItem {
	entries := make([]BatchItem, 0, len(urls))
	for _, u := range urls {
		req, err := NewDownloadRequest(u, quality, kind)
		if err != nil {
			err = fmt.Errorf("invalid entry %q: %w", u, err)
		}
		entries = append(entries, BatchItem{URL: strings.TrimSpace(u), Request: req, Err: err})
	}
	return b.run(ctx, entries)
}

func (b *Batch) run(ctx context.Context, entries []BatchItem) []BatchItem {
	log := Logger(ctx).Sugar().Named("batch")
	items := make([]BatchItem, 0, len(entries))
	for i, item := range entries {
		if err := ctx.Err(); err != nil {
			log.Warnw("batch interrupted", "done", i, "remaining", len(entries)-i)
			break
		}
		started := time.Now()
		if item.Err != nil {
			log.Errorw("skipping invalid entry", "item", i+1, "url", item.URL, "error", item.Err)
		} else {
			log.Infow("downloading", "item", i+1, "of", len(entries), "url", item.URL)
			item.Result, item.Err = b.Downloader.Download(ctx, item.Request)
			if item.Err != nil {
				log.Errorw("item failed", "item", i+1, "url", item.URL, "error", item.Err)
			}
		}
		b.record(log, item, started)
		items = append(items, item)
		if b.OnItem != nil {
			b.OnItem(i, item)
		}
	}
	return items
}

func (b *Batch) record(log *zap.SugaredLogger, item BatchItem, started time.Time) {
	if b.History == nil {
		return
	}
	record := NewHistoryRecord(item, started, time.Now())
	if err := b.History.Write(&record); err != nil {
		log.Warnw("failed to record download history", "url", item.URL, "error", err)
	}
}

// NewHistoryRecord converts a finished batch item into a history record with a fresh ID.
func NewHistoryRecord(item BatchItem, started, finished time.Time) history.Record {
	record := history.Record{
		ID:         uuid.NewString(),
		URL:        item.URL,
		Kind:       item.Request.Kind().String(),
		Quality:    item.Request.Quality(),
		Path:       item.Result.Path,
		Success:    item.Err == nil && item.Result.Success,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if item.Err != nil {
		record.Error = item.Err.Error()
	}
	return record
}

// ReadURLList returns the URLs of a newline-delimited list, skipping blank lines and "#" comments.
func ReadURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

// ReadURLListFile is ReadURLList for a named file.
func ReadURLListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadURLList(f)
}

// ExpandPlaylist asks the download tool for the URLs of every entry of a playlist, without downloading anything.
func ExpandPlaylist(ctx context.Context, cfg *Config, playlistURL string) ([]string, error) {
	cmd := exec.CommandContext(ctx, cfg.Binary, "--flat-playlist", "--get-url", playlistURL)
	stderr := &tailBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, &InvocationError{Binary: cfg.Binary, Err: err}
	}
	urls, err := ReadURLList(strings.NewReader(string(out)))
	if err != nil {
		return nil, err
	}
	Logger(ctx).Sugar().Named("playlist").Infow("expanded playlist", "url", playlistURL, "entries", len(urls))
	return urls, nil
}
