// Package editor applies rotate, color filter and crop operations to a
// raster image and re-encodes it as png, jpeg or webp.
package editor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"

	// register the webp decoder for source images
	_ "golang.org/x/image/webp"
)

// Static errors for editor operations.
var (
	// ErrUnknownFilter is returned for a filter name outside the supported set.
	ErrUnknownFilter = errors.New("editor: unknown filter")
	// ErrUnknownFormat is returned for an output format outside the supported set.
	ErrUnknownFormat = errors.New("editor: unknown output format")
	// ErrEmptyCrop is returned when the crop rectangle misses the image.
	ErrEmptyCrop = errors.New("editor: crop area is empty")
)

// Filter is a named color adjustment.
type Filter string

// Supported filters.
const (
	FilterNone       Filter = "none"
	FilterGrayscale  Filter = "grayscale"
	FilterSepia      Filter = "sepia"
	FilterInvert     Filter = "invert"
	FilterBrightness Filter = "brightness"
	FilterContrast   Filter = "contrast"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// DefaultQuality is the lossy encoding quality, on a 1..100 scale.
const DefaultQuality = 92

// adjustFactor is the brightness and contrast multiplier.
const adjustFactor = 1.5

// Ops are applied in order: filter, rotation, crop. The crop rectangle is
// in the coordinates of the rotated image.
type Ops struct {
	// Rotate is a clockwise angle in degrees.
	Rotate float64
	Filter Filter
	Crop   *image.Rectangle
}

// Decode reads a png, jpeg, gif or webp image, applying EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("editor: decode image: %w", err)
	}
	return img, nil
}

// Apply runs ops on img and returns a new image.
func Apply(img image.Image, ops Ops) (image.Image, error) {
	out, err := applyFilter(img, ops.Filter)
	if err != nil {
		return nil, err
	}

	if ops.Rotate != 0 {
		// imaging rotates counter-clockwise and grows the canvas to fit
		out = imaging.Rotate(out, -ops.Rotate, color.Transparent)
	}

	if ops.Crop != nil {
		b := out.Bounds()
		r := ops.Crop.Add(b.Min).Intersect(b)
		if r.Empty() {
			return nil, fmt.Errorf("%w: %v within %dx%d", ErrEmptyCrop, *ops.Crop, b.Dx(), b.Dy())
		}
		out = imaging.Crop(out, r)
	}
	return out, nil
}

func applyFilter(img image.Image, f Filter) (image.Image, error) {
	var filter gift.Filter
	switch f {
	case "", FilterNone:
		return img, nil
	case FilterGrayscale:
		filter = gift.Grayscale()
	case FilterSepia:
		filter = gift.Sepia(100)
	case FilterInvert:
		filter = gift.Invert()
	case FilterBrightness:
		filter = gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
			return r * adjustFactor, g * adjustFactor, b * adjustFactor, a
		})
	case FilterContrast:
		filter = gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
			return contrast(r), contrast(g), contrast(b), a
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, string(f))
	}

	g := gift.New(filter)
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst, nil
}

func contrast(v float32) float32 {
	return (v-0.5)*adjustFactor + 0.5
}

// ParseFormat maps a format name, including "jpg", to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the media type of the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Extension is the file extension of the format, without a dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Encode writes img to w. quality applies to jpeg and webp; values outside
// 1..100 select DefaultQuality.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG)
	case FormatJPEG:
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatWebP:
		err = webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
	if err != nil {
		return fmt.Errorf("editor: encode %s: %w", format, err)
	}
	return nil
}
