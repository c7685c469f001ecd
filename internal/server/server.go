// Package server exposes downloads over HTTP: jobs are submitted as JSON, their progress is streamed as server-sent
// events, and finished files are fetched (once) by name.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/000Volk000/TubeTap"
	"github.com/000Volk000/TubeTap/internal/history"
	"github.com/000Volk000/TubeTap/internal/pubsub"
)

const (
	DefaultQueueSize  = 32
	subscriberBufSize = 64
	maxRequestBytes   = 64 * 1024
)

var (
	ErrNoDownloader   = errors.New("no downloader")
	ErrInvalidYouTube = errors.New("invalid YouTube URL format")
)

type Options struct {
	Downloader tubetap.Downloader
	// History, if set, receives a record of every finished job.
	History   history.Store
	Logger    *zap.Logger
	QueueSize int
}

type Server struct {
	downloader tubetap.Downloader
	history    history.Store
	log        *zap.SugaredLogger
	events     *pubsub.Publisher[Job]
	queue      chan *Job

	mu   sync.Mutex
	jobs map[string]*Job
}

func New(opts Options) (*Server, error) {
	if opts.Downloader == nil {
		return nil, ErrNoDownloader
	}
	if opts.History == nil {
		opts.History = history.NilStore{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Server{
		downloader: opts.Downloader,
		history:    opts.History,
		log:        opts.Logger.Sugar().Named("server"),
		events:     pubsub.NewPublisher[Job](),
		queue:      make(chan *Job, opts.QueueSize),
		jobs:       make(map[string]*Job),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /download", s.handleDownload)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("GET /files/{name}", s.handleFile)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	return mux
}

// Run processes queued jobs one at a time until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("download worker started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("download worker stopped")
			return ctx.Err()
		case job := <-s.queue:
			s.process(ctx, job)
		}
	}
}

// Close ends every progress stream. Submitted jobs are unaffected.
func (s *Server) Close() {
	s.events.Close()
}

// Job returns a snapshot of the job with the given ID.
func (s *Server) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	rawURL := strings.TrimSpace(body.URL)
	if rawURL == "" {
		s.writeError(w, http.StatusBadRequest, "YouTube URL is required")
		return
	}
	rawURL, videoID, err := ValidateYouTubeURL(rawURL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid YouTube URL format")
		return
	}
	kind, quality, err := tubetap.ParseQualityToken(body.Quality)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := tubetap.NewDownloadRequest(rawURL, quality, kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &Job{
		ID:      uuid.NewString(),
		URL:     req.URL(),
		VideoID: videoID,
		Kind:    req.Kind().String(),
		Quality: req.Quality(),
		Status:  StatusQueued,
		Message: "Download queued, check /progress for status.",
		request: req,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()
	s.events.Send(snapshot)

	select {
	case s.queue <- job:
	default:
		s.update(job, func(j *Job) {
			j.Status = StatusError
			j.Message = "Download queue is full"
		})
		s.writeError(w, http.StatusServiceUnavailable, "Download queue is full")
		return
	}
	s.log.Infow("download queued", "id", job.ID, "url", job.URL, "kind", job.Kind, "quality", job.Quality)
	s.writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	sub, err := s.events.Subscribe(subscriberBufSize)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Server shutting down")
		return
	}
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case job, ok := <-sub.Receive():
			if !ok {
				return
			}
			data, err := json.Marshal(job)
			if err != nil {
				s.log.Errorw("failed to encode progress event", "id", job.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.Job(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	records, err := s.history.List()
	if err != nil {
		s.log.Errorw("failed to list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Error reading history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) process(ctx context.Context, job *Job) {
	log := s.log.With("id", job.ID, "url", job.URL)
	s.update(job, func(j *Job) {
		j.Status = StatusDownloading
		j.Progress = 0
		j.Message = "Starting download..."
	})

	lastPercent := -1
	s.downloader.SetProgressFunc(func(event tubetap.ProgressEvent, _ string) {
		percent := event.WholePercent()
		if percent == lastPercent {
			return
		}
		lastPercent = percent
		s.update(job, func(j *Job) {
			j.Progress = float64(percent)
			j.Message = fmt.Sprintf("Downloading: %d%%", percent)
		})
	})
	defer s.downloader.SetProgressFunc(nil)

	started := time.Now()
	result, err := s.downloader.Download(ctx, job.request)
	record := tubetap.NewHistoryRecord(tubetap.BatchItem{URL: job.request.URL(), Request: job.request, Result: result, Err: err}, started, time.Now())
	if err := s.history.Write(&record); err != nil {
		log.Warnw("failed to record download history", "error", err)
	}

	switch {
	case err != nil:
		log.Errorw("download failed", "error", err)
		s.update(job, func(j *Job) {
			j.Status = StatusError
			j.Message = failureMessage(err)
		})
	case !result.Resolved():
		log.Warn("downloaded file not found")
		s.update(job, func(j *Job) {
			j.Status = StatusError
			j.Message = "Downloaded file not found"
		})
	default:
		log.Infow("download complete", "path", result.Path)
		s.update(job, func(j *Job) {
			j.Status = StatusComplete
			j.Progress = 100
			j.FilePath = url.PathEscape(filepath.Base(result.Path))
			j.Message = "Download complete. Ready for streaming."
		})
	}
}

// update applies f to the job under the lock, then publishes the new state.
func (s *Server) update(job *Job, f func(j *Job)) Job {
	s.mu.Lock()
	before := *job
	f(job)
	after := *job
	s.mu.Unlock()

	if s.log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		changes, err := diff.Diff(before, after)
		if err != nil {
			s.log.Debugw("failed to diff job state", "id", after.ID, "error", err)
		}
		for _, c := range changes {
			s.log.Debugw("job changed", "id", after.ID, "field", strings.Join(c.Path, "."), "from", c.From, "to", c.To)
		}
	}
	s.events.Send(after)
	return after
}

func failureMessage(err error) string {
	var exitErr *tubetap.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Forbidden() {
			return "Download failed: YouTube access forbidden (rate limited). Please try again later."
		}
		msg := fmt.Sprintf("Download failed (exit code %d)", exitErr.Code)
		if stderr := strings.TrimSpace(exitErr.Stderr); stderr != "" {
			msg += ": " + stderr
		}
		return msg
	}
	return fmt.Sprintf("Server error during download: %v", err)
}

// ValidateYouTubeURL checks that rawURL points at youtube.com or youtu.be and names a video, returning the URL (with
// a scheme added if it had none) and the video ID.
func ValidateYouTubeURL(rawURL string) (string, string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidYouTube, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidYouTube, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host != "youtube.com" && host != "youtu.be" && !strings.HasSuffix(host, ".youtube.com") {
		return "", "", fmt.Errorf("%w: unsupported host %q", ErrInvalidYouTube, host)
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", "", fmt.Errorf("%w: missing path", ErrInvalidYouTube)
	}
	videoID, err := youtube.ExtractVideoID(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidYouTube, err)
	}
	return rawURL, videoID, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}
