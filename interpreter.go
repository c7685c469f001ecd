package tubetap

import (
	"bufio"
	"bytes"
	"io"
	"path/filepath"

	"go.uber.org/zap"
)

// ResultSource records how DownloadResult.Path was obtained.
type ResultSource string

const (
	SourceNone      ResultSource = "none"
	SourceCandidate ResultSource = "candidate"
	SourceFinal     ResultSource = "final"
	SourceRecord    ResultSource = "record"
	SourceFallback  ResultSource = "fallback"
)

func sourceForPathKind(k PathKind) ResultSource {
	switch k {
	case PathRecord:
		return SourceRecord
	case PathFinal:
		return SourceFinal
	default:
		return SourceCandidate
	}
}

// DownloadResult is produced once, after the output of the download tool has been fully consumed.
type DownloadResult struct {
	// Path is the resolved file path, empty if it could not be resolved or the download failed.
	Path string
	// Filename is the final path segment of Path, for display.
	Filename string
	Success  bool
	ExitCode int
	// Stderr is the error output of the download tool, kept for surfacing failures.
	Stderr string
	Source ResultSource
}

// Resolved is true if the download succeeded and a file path is known. A successful but unresolved result should be
// treated by callers as a soft failure.
func (r DownloadResult) Resolved() bool {
	return r.Success && r.Path != ""
}

// Interpreter turns the line-by-line output of one download tool run into a DownloadResult. An Interpreter is used
// for exactly one run and is not safe for concurrent use.
type Interpreter struct {
	registry   *MatcherRegistry
	outputDir  string
	extensions []string
	onProgress ProgressFunc
	log        *zap.SugaredLogger

	paths    [PathRecord + 1]string
	filename string
	lines    int
}

// NewInterpreter creates an Interpreter using the matchers in registry. outputDir and extensions configure the
// fallback scan and the resolution of relative paths; onProgress may be nil.
func NewInterpreter(registry *MatcherRegistry, outputDir string, extensions []string, onProgress ProgressFunc) *Interpreter {
	if registry == nil {
		registry = &DefaultMatcherRegistry
	}
	return &Interpreter{
		registry:   registry,
		outputDir:  outputDir,
		extensions: extensions,
		onProgress: onProgress,
		log:        zap.S().Named("interpreter"),
	}
}

// NewRequestInterpreter creates an Interpreter for a request, using the output directory of its media kind.
func NewRequestInterpreter(registry *MatcherRegistry, cfg *Config, req DownloadRequest, onProgress ProgressFunc) *Interpreter {
	return NewInterpreter(registry, cfg.KindDir(req.Kind()), req.Kind().Extensions(), onProgress)
}

// WithLogger replaces the logger used for diagnostics.
func (i *Interpreter) WithLogger(log *zap.SugaredLogger) *Interpreter {
	i.log = log.Named("interpreter")
	return i
}

// Feed processes a single line of output, returning the event it carried or nil if it carried none.
func (i *Interpreter) Feed(line string) Event {
	i.lines++
	match, ok := i.registry.Match(line)
	if !ok {
		return nil
	}
	if match.Err != nil {
		i.log.Debugw("skipping unparseable line", "matcher", match.MatcherName, "line", line, "error", match.Err)
		return nil
	}
	switch e := match.Event.(type) {
	case PathEvent:
		if e.Path == "" {
			return nil
		}
		// Later announcements of the same kind supersede earlier ones.
		i.paths[e.Kind] = e.Path
		i.filename = filepath.Base(e.Path)
		i.log.Debugw("captured path", "matcher", match.MatcherName, "kind", e.Kind, "path", e.Path)
	case ProgressEvent:
		if i.onProgress != nil {
			i.onProgress(e, i.filename)
		}
	}
	return match.Event
}

// Consume feeds every line read from r until EOF. Lines may be terminated by "\n", "\r\n" or a bare "\r".
func (i *Interpreter) Consume(r io.Reader) error {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		i.Feed(scanner.Text())
	}
	return scanner.Err()
}

// Filename returns the display name of the most recently announced file.
func (i *Interpreter) Filename() string {
	return i.filename
}

// Finish produces the DownloadResult once the tool has exited with exitCode. stderr is the tool's error output.
func (i *Interpreter) Finish(exitCode int, stderr string) DownloadResult {
	result := DownloadResult{
		Success:  exitCode == 0,
		ExitCode: exitCode,
		Stderr:   stderr,
		Source:   SourceNone,
	}
	if !result.Success {
		return result
	}

	for kind := PathRecord; kind >= PathCandidate; kind-- {
		if path := i.paths[kind]; path != "" {
			result.Path = i.resolve(path)
			result.Source = sourceForPathKind(kind)
			break
		}
	}

	if result.Path == "" && i.outputDir != "" {
		i.log.Infow("no path in tool output, scanning output directory", "dir", i.outputDir, "lines", i.lines)
		path, err := NewestFile(i.outputDir, i.extensions)
		if err != nil {
			i.log.Warnw("fallback scan failed", "dir", i.outputDir, "error", err)
		} else if path != "" {
			result.Path = path
			result.Source = SourceFallback
		}
	}

	if result.Path != "" {
		result.Filename = filepath.Base(result.Path)
	}
	return result
}

func (i *Interpreter) resolve(path string) string {
	if filepath.IsAbs(path) || i.outputDir == "" {
		return path
	}
	if dir := filepath.Dir(path); dir != "." {
		// Already relative to the working directory of the tool
		return path
	}
	return filepath.Join(i.outputDir, path)
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	return scanner
}

// scanLines is bufio.ScanLines, but also treating a bare '\r' as a line terminator.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need more data to know whether this is "\r\n"
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
