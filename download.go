package tubetap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Maximum amount of the download tool's error output kept for reporting, counted from the end.
const maxStderrBytes = 64 * 1024

var ErrInvocation = errors.New("failed to start download tool")

// InvocationError means the download tool could not be started at all.
type InvocationError struct {
	Binary string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrInvocation, e.Binary, e.Err)
}

func (e *InvocationError) Unwrap() []error {
	return []error{ErrInvocation, e.Err}
}

// ExitError means the download tool ran but exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("download failed (exit code %d)", e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Forbidden is true if the tool's error output suggests the site refused access, usually due to rate limiting.
func (e *ExitError) Forbidden() bool {
	return strings.Contains(e.Stderr, "403") || strings.Contains(e.Stderr, "Forbidden")
}

// Downloader runs the download tool for one request at a time.
type Downloader interface {
	// Config returns a copy of the configuration the Downloader was built with.
	Config() Config

	// Download runs the download tool for req and interprets its output. Failures of the tool itself are reported
	// both in the returned DownloadResult and as an *ExitError; a failure to start the tool is an *InvocationError.
	// A successful result may still have an empty path; see DownloadResult.Resolved.
	Download(ctx context.Context, req DownloadRequest) (DownloadResult, error)

	// SetProgressFunc replaces the progress callback for subsequent downloads.
	SetProgressFunc(f ProgressFunc)
}

type downloader struct {
	config   Config
	registry *MatcherRegistry
	log      *zap.SugaredLogger

	mu         sync.Mutex
	onProgress ProgressFunc
}

func (d *downloader) Config() Config {
	return d.config
}

func (d *downloader) SetProgressFunc(f ProgressFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onProgress = f
}

func (d *downloader) progressFunc() ProgressFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onProgress
}

func (d *downloader) Download(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	log := d.log.With("url", req.URL(), "kind", req.Kind(), "quality", req.Quality())

	if err := d.config.EnsureDirs(); err != nil {
		return DownloadResult{ExitCode: -1, Source: SourceNone}, err
	}
	var recordFile string
	if d.config.CompletionRecord {
		f, err := os.CreateTemp("", "tubetap-record-*.txt")
		if err != nil {
			return DownloadResult{ExitCode: -1, Source: SourceNone}, fmt.Errorf("failed to create completion record file: %w", err)
		}
		recordFile = f.Name()
		_ = f.Close()
		defer os.Remove(recordFile)
	}
	args, err := d.config.Args(req, recordFile)
	if err != nil {
		return DownloadResult{ExitCode: -1, Source: SourceNone}, err
	}

	log.Debugw("starting download tool", "binary", d.config.Binary, "args", args)
	cmd := exec.CommandContext(ctx, d.config.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return DownloadResult{ExitCode: -1, Source: SourceNone}, &InvocationError{Binary: d.config.Binary, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return DownloadResult{ExitCode: -1, Source: SourceNone}, &InvocationError{Binary: d.config.Binary, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return DownloadResult{ExitCode: -1, Source: SourceNone}, &InvocationError{Binary: d.config.Binary, Err: err}
	}

	interpreter := NewRequestInterpreter(d.registry, &d.config, req, d.progressFunc()).WithLogger(d.log)
	errOutput := &tailBuffer{limit: maxStderrBytes}
	for line := range readOutput(log, stdout, stderr) {
		event := interpreter.Feed(line.text)
		if _, progress := event.(ProgressEvent); line.stderr && !progress {
			errOutput.WriteLine(line.text)
		}
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if exitCode == 0 {
			// Killed by a signal (ExitCode() == -1) or an I/O failure waiting on the process
			exitCode = -1
		}
		log.Debugw("download tool exited with error", "error", err)
	}
	if recordFile != "" {
		if err := feedFile(interpreter, recordFile); err != nil {
			log.Warnw("failed reading completion record", "file", recordFile, "error", err)
		}
	}

	result := interpreter.Finish(exitCode, errOutput.String())
	if !result.Success {
		log.Errorw("download failed", "exit_code", exitCode, "stderr", strings.TrimSpace(result.Stderr))
		return result, &ExitError{Code: exitCode, Stderr: result.Stderr}
	}
	if result.Path == "" {
		log.Warn("download succeeded but the output file could not be resolved")
	} else {
		log.Infow("download complete", "path", result.Path, "source", result.Source)
	}
	return result, nil
}

type outputLine struct {
	text   string
	stderr bool
}

// readOutput merges the lines of both output streams of the download tool, each stream in order. The channel is
// closed once both streams are exhausted.
func readOutput(log *zap.SugaredLogger, stdout, stderr io.Reader) <-chan outputLine {
	lines := make(chan outputLine)
	scan := func(r io.Reader, isStderr bool) func() error {
		return func() error {
			scanner := newLineScanner(r)
			for scanner.Scan() {
				lines <- outputLine{text: scanner.Text(), stderr: isStderr}
			}
			if err := scanner.Err(); err != nil {
				// Drain so the tool can't block on a full pipe
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			return nil
		}
	}
	var g errgroup.Group
	g.Go(scan(stdout, false))
	g.Go(scan(stderr, true))
	go func() {
		if err := g.Wait(); err != nil {
			log.Warnw("failed reading download tool output", "error", err)
		}
		close(lines)
	}()
	return lines
}

func feedFile(interpreter *Interpreter, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return interpreter.Consume(f)
}

// tailBuffer keeps the last limit bytes written to it, while still reporting full writes. The error a tool reports
// last is the one worth keeping.
type tailBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.limit {
		b.buf = append(b.buf[:0], p[len(p)-b.limit:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) WriteLine(line string) {
	_, _ = b.Write([]byte(line + "\n"))
}

// String returns the kept output. If anything was discarded, the partial first line is dropped too.
func (b *tailBuffer) String() string {
	s := string(b.buf)
	if b.truncated {
		if i := strings.IndexByte(s, '\n'); i >= 0 && i+1 < len(s) {
			s = s[i+1:]
		}
	}
	return s
}

type DownloaderBuilder interface {
	Build() (Downloader, error)
	WithConfig(cfg Config) DownloaderBuilder
	WithLogger(log *zap.Logger) DownloaderBuilder
	WithProgressCallback(f ProgressFunc) DownloaderBuilder
	WithRegistry(r *MatcherRegistry) DownloaderBuilder
}

type downloaderBuilder struct {
	config     Config
	log        *zap.Logger
	onProgress ProgressFunc
	registry   *MatcherRegistry
}

func NewDownloaderBuilder() DownloaderBuilder {
	return &downloaderBuilder{
		config:   DefaultConfig(),
		registry: &DefaultMatcherRegistry,
	}
}

func (b *downloaderBuilder) Build() (Downloader, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if b.registry == nil || b.registry.Len() == 0 {
		return nil, fmt.Errorf("no output matchers registered")
	}
	log := b.log
	if log == nil {
		log = zap.L()
	}
	d := &downloader{
		config:     b.config,
		registry:   b.registry,
		log:        log.Sugar().Named("downloader"),
		onProgress: b.onProgress,
	}
	d.config.ExtraArgs = append([]string(nil), b.config.ExtraArgs...)
	return d, nil
}

func (b *downloaderBuilder) WithConfig(cfg Config) DownloaderBuilder {
	b.config = cfg
	return b
}

func (b *downloaderBuilder) WithLogger(log *zap.Logger) DownloaderBuilder {
	b.log = log
	return b
}

func (b *downloaderBuilder) WithProgressCallback(f ProgressFunc) DownloaderBuilder {
	b.onProgress = f
	return b
}

func (b *downloaderBuilder) WithRegistry(r *MatcherRegistry) DownloaderBuilder {
	b.registry = r
	return b
}
