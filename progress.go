package tubetap

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidPercent = errors.New("invalid progress percentage")

// ProgressEvent is one progress update from the download tool. Rate and Total are kept as the tool printed them
// (e.g. "1.21MiB/s"), ETA as a clock string ("00:42").
type ProgressEvent struct {
	Percent float64
	Total   string
	Rate    string
	ETA     string
}

func (ProgressEvent) isEvent() {}

// NewProgressEvent parses the percentage of a progress line; the other fields are copied as-is.
func NewProgressEvent(percent, total, rate, eta string) (ProgressEvent, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(percent, "%")), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return ProgressEvent{}, fmt.Errorf("%w: %q", ErrInvalidPercent, percent)
	}
	return ProgressEvent{
		Percent: value,
		Total:   strings.TrimSpace(total),
		Rate:    strings.TrimSpace(rate),
		ETA:     strings.TrimSpace(eta),
	}, nil
}

// WholePercent floors the percentage into [0, 100]. Anything that is not a number counts as zero.
func (e ProgressEvent) WholePercent() int {
	p := e.Percent
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Floor(p))
}

// Bar renders a proportional bar of the given width, e.g. "=====>    ".
func (e ProgressEvent) Bar(width int) string {
	if width <= 0 {
		return ""
	}
	filled := e.WholePercent() * width / 100
	if filled >= width {
		return strings.Repeat("=", width)
	}
	return strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1)
}

// Line renders the one-line progress display used by the plain (non-interactive) output mode.
func (e ProgressEvent) Line(filename string) string {
	const maxName = 40
	if runes := []rune(filename); len(runes) > maxName {
		filename = string(runes[:maxName])
	}
	rate := e.Rate
	if rate == "" {
		rate = "??MiB/s"
	}
	eta := e.ETA
	if eta == "" {
		eta = "--:--"
	}
	return fmt.Sprintf("Downloading: %s %.1f%% [%s] [%s] @ %s", filename, e.Percent, e.Bar(50), eta, rate)
}

// ProgressFunc receives progress updates along with the display name of the file being downloaded, which may be
// empty until a destination line has been seen.
type ProgressFunc func(event ProgressEvent, filename string)
