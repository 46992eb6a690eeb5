package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/maauso/gifkit/internal/raster"
)

// Defaults for a Driver.
const (
	DefaultSeekTimeout        = 5 * time.Second
	DefaultFrameWarnThreshold = 500
)

// Sink receives captured frames in index order. Returning an error stops
// the capture.
type Sink func(raster.Frame) error

// ProgressFunc receives the number of frames captured so far and the total.
type ProgressFunc func(done, total int)

// Driver runs a capture plan against a media source, one frame at a time.
type Driver struct {
	logger        *slog.Logger
	seekTimeout   time.Duration
	warnThreshold int
	copyFrames    bool
	kernel        draw.Interpolator
	progress      ProgressFunc
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithSeekTimeout sets how long a single seek may take.
func WithSeekTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.seekTimeout = timeout
		}
	}
}

// WithFrameWarnThreshold sets the frame count above which a warning is logged.
func WithFrameWarnThreshold(n int) Option {
	return func(d *Driver) {
		d.warnThreshold = n
	}
}

// WithCopy controls whether frames handed to the sink own their pixels.
// When disabled the sink must be done with a frame before it returns.
func WithCopy(copyFrames bool) Option {
	return func(d *Driver) {
		d.copyFrames = copyFrames
	}
}

// WithKernel sets the scaling kernel used to blit frames onto the surface.
func WithKernel(kernel draw.Interpolator) Option {
	return func(d *Driver) {
		d.kernel = kernel
	}
}

// WithProgress registers a capture progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Driver) {
		d.progress = fn
	}
}

// NewDriver creates a capture driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		seekTimeout:   DefaultSeekTimeout,
		warnThreshold: DefaultFrameWarnThreshold,
		copyFrames:    true,
		kernel:        draw.CatmullRom,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Capture samples plan.NumFrames frames from m and hands each to sink in
// order. A failed or timed out seek aborts the run with a *CaptureError;
// frames already handed off stay with the sink.
func (d *Driver) Capture(ctx context.Context, plan Plan, m Media, sink Sink) error {
	if plan.NumFrames <= 0 {
		return configErr(ErrNoFrames, "")
	}
	if d.warnThreshold > 0 && plan.NumFrames > d.warnThreshold {
		d.logger.Warn("large frame count, conversion may be slow",
			slog.Int("frames", plan.NumFrames),
			slog.Int("threshold", d.warnThreshold),
		)
	}

	d.logger.Info("starting capture",
		slog.Int("frames", plan.NumFrames),
		slog.Int("width", plan.Width),
		slog.Int("height", plan.Height),
		slog.Int("fps", plan.FPS),
		slog.Float64("start", plan.Start),
		slog.Float64("end", plan.End),
	)

	surface := NewSurface(plan.Width, plan.Height, d.kernel)
	for i := 0; i < plan.NumFrames; i++ {
		ts := plan.Timestamp(i)
		if err := d.seek(ctx, m, ts); err != nil {
			d.logger.Error("capture aborted",
				slog.Int("frame", i),
				slog.Float64("timestamp", ts),
				slog.String("error", err.Error()),
			)
			return err
		}

		src := m.Frame()
		if src == nil {
			return &CaptureError{Timestamp: ts, Err: ErrNoFrame}
		}
		surface.Draw(src)

		if err := sink(surface.Snapshot(i, plan.Delay, d.copyFrames)); err != nil {
			return fmt.Errorf("capture: hand off frame %d: %w", i, err)
		}
		if d.progress != nil {
			d.progress(i+1, plan.NumFrames)
		}
	}

	d.logger.Debug("capture finished", slog.Int("frames", plan.NumFrames))
	return nil
}

func (d *Driver) seek(ctx context.Context, m Media, ts float64) error {
	if err := ctx.Err(); err != nil {
		return &CaptureError{Timestamp: ts, Err: err}
	}

	seekCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(d.seekTimeout)
	defer timer.Stop()

	select {
	case err := <-m.Seek(seekCtx, ts):
		if err != nil {
			return &CaptureError{Timestamp: ts, Err: err}
		}
		return nil
	case <-timer.C:
		return &CaptureError{Timestamp: ts, Err: ErrSeekTimeout}
	case <-ctx.Done():
		return &CaptureError{Timestamp: ts, Err: ctx.Err()}
	}
}
