package tubetap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/hashicorp/go-multierror"
)

const (
	DefaultBinary         = "yt-dlp"
	DefaultOutputTemplate = "%(title)s.%(ext)s"
	DefaultAudioFormat    = "mp3"
	// DefaultVideoFormat selects mp4 video no taller than the requested height plus m4a audio, falling back to the
	// best single mp4, then to anything.
	DefaultVideoFormat = "bestvideo[ext=mp4][height<={{.Height}}]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	// CompletionRecordPrefix marks the machine-readable line naming the finished file.
	CompletionRecordPrefix = "TUBETAP_FILE:"
)

var (
	ErrNoBaseDir = errors.New("base directory not set")
	ErrNoBinary  = errors.New("download tool binary not set")
)

// Config is the process-wide configuration of the downloader, passed explicitly rather than held in globals.
type Config struct {
	// BaseDir holds one sub-directory per media kind (see MediaKind.Dir).
	BaseDir string
	// Binary is the download tool to execute, looked up in PATH if not absolute.
	Binary string
	// OutputTemplate is the download tool's file name template, relative to the kind directory.
	OutputTemplate string
	AudioFormat    string
	// VideoFormat is a text/template rendered with {{.Height}} to give the format selection expression.
	VideoFormat string
	// CompletionRecord asks the download tool to write CompletionRecordPrefix followed by the final file path to a
	// record file, read back once the tool has exited.
	CompletionRecord bool
	// ExtraArgs are passed to the download tool before the URL.
	ExtraArgs []string
}

// DefaultConfig returns the configuration used when nothing is overridden, rooted at ~/Downloads/yt_Downloader.
func DefaultConfig() Config {
	base := filepath.Join(os.TempDir(), "yt_Downloader")
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, "Downloads", "yt_Downloader")
	}
	return Config{
		BaseDir:          base,
		Binary:           DefaultBinary,
		OutputTemplate:   DefaultOutputTemplate,
		AudioFormat:      DefaultAudioFormat,
		VideoFormat:      DefaultVideoFormat,
		CompletionRecord: true,
	}
}

// Validate checks the configuration, reporting every problem found.
func (c *Config) Validate() error {
	var result error
	if strings.TrimSpace(c.BaseDir) == "" {
		result = multierror.Append(result, ErrNoBaseDir)
	}
	if strings.TrimSpace(c.Binary) == "" {
		result = multierror.Append(result, ErrNoBinary)
	}
	if strings.TrimSpace(c.OutputTemplate) == "" {
		result = multierror.Append(result, errors.New("output template not set"))
	} else if filepath.IsAbs(c.OutputTemplate) {
		result = multierror.Append(result, fmt.Errorf("output template %q must be relative", c.OutputTemplate))
	}
	if strings.TrimSpace(c.AudioFormat) == "" {
		result = multierror.Append(result, errors.New("audio format not set"))
	}
	if strings.TrimSpace(c.VideoFormat) == "" {
		result = multierror.Append(result, errors.New("video format not set"))
	} else if _, err := c.videoFormatTemplate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid video format template: %w", err))
	}
	return result
}

// KindDir returns the directory finished files of the given kind are written to.
func (c *Config) KindDir(kind MediaKind) string {
	return filepath.Join(c.BaseDir, kind.Dir())
}

// EnsureDirs creates the directory of every media kind. It is idempotent.
func (c *Config) EnsureDirs() error {
	for _, kind := range []MediaKind{MediaAudio, MediaVideo} {
		if err := os.MkdirAll(c.KindDir(kind), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", kind, err)
		}
	}
	return nil
}

// Args builds the command line arguments (excluding the binary) for downloading req. If CompletionRecord is set and
// recordFile is not empty, the tool appends its completion record to recordFile.
func (c *Config) Args(req DownloadRequest, recordFile string) ([]string, error) {
	args := []string{
		"--no-warnings",
		"--newline",
		"-o", filepath.Join(c.KindDir(req.Kind()), c.OutputTemplate),
	}
	switch req.Kind() {
	case MediaAudio:
		args = append(args,
			"--extract-audio",
			"--audio-format", c.AudioFormat,
			"--audio-quality", req.Quality()+"K",
		)
	case MediaVideo:
		format, err := c.VideoFormatExpression(req.Quality())
		if err != nil {
			return nil, err
		}
		args = append(args, "-f", format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind())
	}
	if c.CompletionRecord && recordFile != "" {
		// Not --print, which implies --quiet and moves progress and destination lines off stdout
		args = append(args, "--print-to-file", "after_move:"+CompletionRecordPrefix+"%(filepath)s", recordFile)
	}
	args = append(args, c.ExtraArgs...)
	return append(args, req.URL()), nil
}

// VideoFormatExpression renders the video format selection expression for the given height.
func (c *Config) VideoFormatExpression(height string) (string, error) {
	tmpl, err := c.videoFormatTemplate()
	if err != nil {
		return "", err
	}
	builder := strings.Builder{}
	if err := tmpl.Execute(&builder, &videoFormatTemplateArgs{Height: height}); err != nil {
		return "", fmt.Errorf("failed to render video format: %w", err)
	}
	return builder.String(), nil
}

func (c *Config) videoFormatTemplate() (*template.Template, error) {
	return template.New("video_format").Option("missingkey=error").Parse(c.VideoFormat)
}

type videoFormatTemplateArgs struct {
	Height string
}
