// Package raster defines the RGBA frame that flows from capture to encoding.
package raster

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrFrameSize is returned when a pixel buffer does not match its dimensions.
var ErrFrameSize = errors.New("raster: pixel buffer does not match frame dimensions")

// Frame is one captured image: width×height RGBA pixels, row-major,
// with a display delay in hundredths of a second.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []byte
	Delay  int
}

// NewFrame allocates a zeroed frame.
func NewFrame(index, width, height int) Frame {
	return Frame{
		Index:  index,
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// FromRGBA copies img into a frame. The image bounds become the frame size.
func FromRGBA(index int, img *image.RGBA) Frame {
	b := img.Bounds()
	f := NewFrame(index, b.Dx(), b.Dy())
	rowLen := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(f.Pix[y*rowLen:], src)
	}
	return f
}

// Validate reports whether the pixel buffer length is width×height×4.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrFrameSize, f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*4 {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d",
			ErrFrameSize, f.Width, f.Height, f.Width*f.Height*4, len(f.Pix))
	}
	return nil
}

// Clone returns a frame with its own pixel buffer.
func (f Frame) Clone() Frame {
	c := f
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return c
}

// RGB drops the alpha channel and returns packed RGB triples.
func (f Frame) RGB() []byte {
	n := len(f.Pix) / 4
	out := make([]byte, n*3)
	for i, j := 0, 0; i < n; i, j = i+1, j+3 {
		out[j] = f.Pix[i*4]
		out[j+1] = f.Pix[i*4+1]
		out[j+2] = f.Pix[i*4+2]
	}
	return out
}

// Image wraps the pixel buffer as an *image.RGBA without copying.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// DelayFromMillis converts a per-frame delay in milliseconds to GIF
// hundredths, rounding to the nearest unit.
func DelayFromMillis(ms float64) int {
	return int(math.Round(ms / 10))
}

// DelayForFPS is the GIF delay for a capture rate.
func DelayForFPS(fps int) int {
	if fps <= 0 {
		return 0
	}
	return DelayFromMillis(1000 / float64(fps))
}
