package main

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/maauso/gifkit/internal/job"
)

// progress renders the capture and encode phases of a job as two bars.
// Events arrive from capture and encoder goroutines.
type progress struct {
	w io.Writer

	mu      sync.Mutex
	capture *progressbar.ProgressBar
	encode  *progressbar.ProgressBar
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w}
}

func (p *progress) newBar(n int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
	)
}

// Update implements job.Listener.
func (p *progress) Update(ev job.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.CaptureTotal > 0 && p.capture == nil {
		p.capture = p.newBar(ev.CaptureTotal, "capturing")
	}
	if p.capture != nil {
		_ = p.capture.Set(ev.CaptureDone)
	}

	// workers encode during capture; the encode bar starts once capture ends
	captured := p.capture != nil && ev.CaptureDone >= ev.CaptureTotal
	if p.encode == nil && (captured || ev.Status == job.StatusEncoding) {
		if p.capture != nil && !p.capture.IsFinished() {
			_ = p.capture.Finish()
		}
		p.encode = p.newBar(100, "encoding ")
	}
	if p.encode != nil {
		_ = p.encode.Set(int(math.Round(ev.EncodeProgress * 100)))
	}
}

// Close finishes any bar still open.
func (p *progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, bar := range []*progressbar.ProgressBar{p.capture, p.encode} {
		if bar != nil && !bar.IsFinished() {
			_ = bar.Exit()
		}
	}
}
