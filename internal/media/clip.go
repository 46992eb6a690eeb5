package media

import (
	"context"
	"image"
	"sync"

	"github.com/maauso/gifkit/internal/capture"
)

// Clip is an opened video file. Each Seek decodes one frame in a separate
// ffmpeg process; the decoded frame stays current until the next Seek
// completes.
type Clip struct {
	decoder *FFmpegDecoder
	path    string
	info    Info

	mu      sync.RWMutex
	current *image.RGBA
}

func newClip(d *FFmpegDecoder, path string, info Info) *Clip {
	return &Clip{decoder: d, path: path, info: info}
}

// Path is the file the clip decodes.
func (c *Clip) Path() string {
	return c.path
}

// Info returns the probed metadata.
func (c *Clip) Info() Info {
	return c.info
}

// Duration implements capture.Media.
func (c *Clip) Duration() float64 {
	return c.info.Duration
}

// Size implements capture.Media.
func (c *Clip) Size() (int, int) {
	return c.info.Width, c.info.Height
}

// Seek implements capture.Media. Cancelling ctx kills the decode.
func (c *Clip) Seek(ctx context.Context, t float64) <-chan error {
	ready := make(chan error, 1)
	go func() {
		pix, err := c.decoder.ExtractFrame(ctx, c.path, t, c.info.Width, c.info.Height)
		if err != nil {
			ready <- err
			return
		}
		img := &image.RGBA{
			Pix:    pix,
			Stride: c.info.Width * 4,
			Rect:   image.Rect(0, 0, c.info.Width, c.info.Height),
		}
		c.mu.Lock()
		c.current = img
		c.mu.Unlock()
		ready <- nil
	}()
	return ready
}

// Frame implements capture.Media.
func (c *Clip) Frame() image.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	return c.current
}

var _ capture.Media = (*Clip)(nil)
