package capture

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/maauso/gifkit/internal/raster"
)

// Surface is a reusable RGBA canvas of the output size. Every Draw
// replaces its whole content.
type Surface struct {
	img    *image.RGBA
	kernel draw.Interpolator
}

// NewSurface allocates a width×height surface. A nil kernel selects
// CatmullRom.
func NewSurface(width, height int, kernel draw.Interpolator) *Surface {
	if kernel == nil {
		kernel = draw.CatmullRom
	}
	return &Surface{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		kernel: kernel,
	}
}

// Draw scales src onto the full surface.
func (s *Surface) Draw(src image.Image) {
	s.kernel.Scale(s.img, s.img.Bounds(), src, src.Bounds(), draw.Src, nil)
}

// Image exposes the backing image.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Snapshot returns the surface as frame index. With copyPix false the frame
// aliases the surface and is only valid until the next Draw.
func (s *Surface) Snapshot(index, delay int, copyPix bool) raster.Frame {
	b := s.img.Bounds()
	f := raster.Frame{
		Index:  index,
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    s.img.Pix,
		Delay:  delay,
	}
	if copyPix {
		return f.Clone()
	}
	return f
}
