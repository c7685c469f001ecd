package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/000Volk000/TubeTap"
)

const maxDescriptionRunes = 40

// progressDisplay renders download progress on a terminal, either as a progress bar or as the single rewritten
// status line of tubetap.ProgressEvent.Line.
type progressDisplay struct {
	out   io.Writer
	plain bool

	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	filename string
	active   bool
}

func newProgressDisplay(out io.Writer, plain bool) *progressDisplay {
	return &progressDisplay{out: out, plain: plain}
}

func (p *progressDisplay) Update(event tubetap.ProgressEvent, filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	if p.plain {
		_, _ = fmt.Fprint(p.out, "\r\033[K"+event.Line(filename))
		return
	}
	if p.bar == nil || filename != p.filename {
		p.finishBar()
		p.filename = filename
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(truncate(filename, maxDescriptionRunes)),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
		)
	}
	p.bar.Describe(describe(filename, event))
	_ = p.bar.Set(event.WholePercent())
}

// describe labels the bar with the file name, transfer rate and time remaining.
func describe(filename string, event tubetap.ProgressEvent) string {
	rate := event.Rate
	if rate == "" {
		rate = "??MiB/s"
	}
	eta := event.ETA
	if eta == "" {
		eta = "--:--"
	}
	return fmt.Sprintf("%s @ %s ETA %s", truncate(filename, maxDescriptionRunes), rate, eta)
}

// Done ends the current display line, if any.
func (p *progressDisplay) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plain {
		if p.active {
			_, _ = fmt.Fprintln(p.out)
		}
	} else {
		p.finishBar()
	}
	p.active = false
}

func (p *progressDisplay) finishBar() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	_, _ = fmt.Fprintln(p.out)
	p.bar = nil
	p.filename = ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
