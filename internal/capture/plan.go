// Package capture samples a seekable media source at fixed timestamps and
// rasterizes every sample into an RGBA frame of the output size.
package capture

import (
	"context"
	"image"
	"math"
	"slices"

	"github.com/maauso/gifkit/internal/raster"
)

// Output sizes and rates offered to users.
var (
	SupportedWidths = []int{160, 240, 320, 480, 640}
	SupportedFPS    = []int{5, 10, 15, 20, 24, 30}
)

// Defaults applied when a parameter is left at zero.
const (
	DefaultWidth = 320
	DefaultFPS   = 10
)

// Media is a decoded, seekable video.
type Media interface {
	// Duration is the clip length in seconds.
	Duration() float64
	// Size is the native frame size in pixels.
	Size() (width, height int)
	// Seek positions the media at t seconds. The returned channel receives
	// nil once the frame at t is decoded, or the decode error.
	Seek(ctx context.Context, t float64) <-chan error
	// Frame is the most recently decoded frame.
	Frame() image.Image
}

// Params are the user-facing capture settings.
type Params struct {
	Start float64
	End   float64
	FPS   int
	Width int
}

// Plan is a validated capture schedule for one media source.
type Plan struct {
	Start     float64
	End       float64
	FPS       int
	NumFrames int
	Width     int
	Height    int
	// Delay is the per-frame display delay in hundredths of a second.
	Delay int
}

func (p Params) withDefaults() Params {
	if p.Width == 0 {
		p.Width = DefaultWidth
	}
	if p.FPS == 0 {
		p.FPS = DefaultFPS
	}
	return p
}

// Validate checks the parameters that do not depend on the media: the
// width and rate are supported and the requested range holds at least one
// frame. Clamping to the media duration only shortens the range, so
// NewPlan may still reject parameters that pass here.
func (p Params) Validate() error {
	p = p.withDefaults()
	if !slices.Contains(SupportedWidths, p.Width) {
		return configErr(ErrUnsupportedWidth, "%d", p.Width)
	}
	if !slices.Contains(SupportedFPS, p.FPS) {
		return configErr(ErrUnsupportedFPS, "%d", p.FPS)
	}
	start := math.Max(0, p.Start)
	if p.End <= start {
		return configErr(ErrInvalidRange, "start %.2fs, end %.2fs", start, p.End)
	}
	if n := int(math.Floor((p.End - start) * float64(p.FPS))); n <= 0 {
		return configErr(ErrNoFrames, "%.2fs at %d fps", p.End-start, p.FPS)
	}
	return nil
}

// NewPlan validates p against m and derives the frame count and output
// size. Start is clamped to 0 and End to the media duration. The width is
// capped at the native width and the height follows the native aspect.
func NewPlan(p Params, m Media) (Plan, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	p = p.withDefaults()

	start := math.Max(0, p.Start)
	end := p.End
	if d := m.Duration(); d > 0 && end > d {
		end = d
	}
	if end <= start {
		return Plan{}, configErr(ErrInvalidRange, "start %.2fs, end %.2fs", start, end)
	}

	n := int(math.Floor((end - start) * float64(p.FPS)))
	if n <= 0 {
		return Plan{}, configErr(ErrNoFrames, "%.2fs at %d fps", end-start, p.FPS)
	}

	nw, nh := m.Size()
	if nw <= 0 || nh <= 0 {
		return Plan{}, configErr(ErrUnknownDimensions, "%dx%d", nw, nh)
	}
	width := min(p.Width, nw)
	aspect := float64(nw) / float64(nh)
	height := max(1, int(math.Round(float64(width)/aspect)))

	return Plan{
		Start:     start,
		End:       end,
		FPS:       p.FPS,
		NumFrames: n,
		Width:     width,
		Height:    height,
		Delay:     raster.DelayForFPS(p.FPS),
	}, nil
}

// Timestamp is the media time of frame i.
func (p Plan) Timestamp(i int) float64 {
	return p.Start + float64(i)/float64(p.FPS)
}
