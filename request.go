package tubetap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrEmptyURL       = errors.New("empty URL")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrInvalidQuality = errors.New("invalid quality token")
	ErrUnknownKind    = errors.New("unknown media kind")
)

// DefaultVideoHeight is used when a quality token is empty.
const DefaultVideoHeight = "720"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind accepts "audio"/"video" and the extension-style aliases "mp3"/"mp4".
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "mp3", "a":
		return MediaAudio, nil
	case "video", "mp4", "v":
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k MediaKind) String() string {
	return string(k)
}

// Dir is the name of the sub-directory of the base directory that holds finished files of this kind.
func (k MediaKind) Dir() string {
	switch k {
	case MediaAudio:
		return "Audios"
	case MediaVideo:
		return "Videos"
	default:
		return ""
	}
}

// Extensions returns the finished-artifact extensions accepted by the fallback scan.
func (k MediaKind) Extensions() []string {
	switch k {
	case MediaAudio:
		return []string{".mp3"}
	case MediaVideo:
		return []string{".mp4", ".mkv", ".webm"}
	default:
		return nil
	}
}

// DownloadRequest is immutable once constructed; use NewDownloadRequest.
type DownloadRequest struct {
	url     string
	quality string
	kind    MediaKind
}

// NewDownloadRequest validates the URL and normalises the quality token for the given kind. Audio qualities are kept
// as bare bitrate digits ("192"), video qualities as bare height digits ("720").
func NewDownloadRequest(rawURL string, quality string, kind MediaKind) (DownloadRequest, error) {
	var result error
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		result = multierror.Append(result, err)
	}
	if kind != MediaAudio && kind != MediaVideo {
		result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownKind, kind))
	}
	normalized, err := NormalizeQuality(quality, kind)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		return DownloadRequest{}, result
	}
	return DownloadRequest{url: rawURL, quality: normalized, kind: kind}, nil
}

// ParseQualityToken infers the media kind from a combined token: a trailing "p" means video height, a trailing "K"
// means audio bitrate, and bare digits mean video height. An empty token gives the default video height.
func ParseQualityToken(token string) (MediaKind, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return MediaVideo, DefaultVideoHeight, nil
	}
	var kind MediaKind
	switch token[len(token)-1] {
	case 'K', 'k':
		kind = MediaAudio
	default:
		kind = MediaVideo
	}
	quality, err := NormalizeQuality(token, kind)
	if err != nil {
		return "", "", err
	}
	return kind, quality, nil
}

// NormalizeQuality strips the unit suffix from a quality token, leaving only digits.
func NormalizeQuality(token string, kind MediaKind) (string, error) {
	token = strings.TrimSpace(token)
	switch kind {
	case MediaAudio:
		token = strings.TrimRight(token, "Kk")
	case MediaVideo:
		if token == "" {
			return DefaultVideoHeight, nil
		}
		token = strings.TrimRight(token, "Pp")
	}
	if token == "" || strings.Trim(token, "0123456789") != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidQuality, token)
	}
	return token, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return nil
}

func (r DownloadRequest) URL() string {
	return r.url
}

// Quality is the normalised quality token (digits only).
func (r DownloadRequest) Quality() string {
	return r.quality
}

func (r DownloadRequest) Kind() MediaKind {
	return r.kind
}

func (r DownloadRequest) String() string {
	return fmt.Sprintf("DownloadRequest{URL:%q, Kind:%s, Quality:%s}", r.url, r.kind, r.quality)
}
