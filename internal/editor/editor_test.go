package editor

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestApply_Filters(t *testing.T) {
	src := solid(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	tests := []struct {
		filter Filter
		check  func(t *testing.T, c color.NRGBA)
	}{
		{FilterNone, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, c)
		}},
		{FilterGrayscale, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, c.R, c.G)
			assert.Equal(t, c.G, c.B)
		}},
		{FilterInvert, func(t *testing.T, c color.NRGBA) {
			assert.InDelta(t, 55, int(c.R), 1)
			assert.InDelta(t, 155, int(c.G), 1)
			assert.InDelta(t, 205, int(c.B), 1)
		}},
		{FilterSepia, func(t *testing.T, c color.NRGBA) {
			assert.Greater(t, c.R, c.B)
		}},
		{FilterBrightness, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, uint8(255), c.R)
			assert.InDelta(t, 150, int(c.G), 1)
			assert.InDelta(t, 75, int(c.B), 1)
		}},
		{FilterContrast, func(t *testing.T, c color.NRGBA) {
			assert.Greater(t, c.R, uint8(200))
			assert.Less(t, c.B, uint8(50))
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			out, err := Apply(src, Ops{Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())
			tt.check(t, pixel(out, 1, 1))
		})
	}
}

func TestApply_UnknownFilter(t *testing.T) {
	_, err := Apply(solid(2, 2, color.NRGBA{A: 255}), Ops{Filter: "posterize"})
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestApply_RotateGrowsCanvas(t *testing.T) {
	src := solid(40, 20, color.NRGBA{R: 255, A: 255})

	out, err := Apply(src, Ops{Rotate: 90})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 40), out.Bounds().Size())

	out, err = Apply(src, Ops{Rotate: 45})
	require.NoError(t, err)
	b := out.Bounds()
	assert.Greater(t, b.Dx(), 40)
	assert.Greater(t, b.Dy(), 20)
	// corners outside the rotated source are transparent
	assert.Equal(t, uint8(0), pixel(out, 0, 0).A)
}

func TestApply_RotateClockwise(t *testing.T) {
	// left column red, rest blue
	src := solid(4, 2, color.NRGBA{B: 255, A: 255})
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(0, 1, color.NRGBA{R: 255, A: 255})

	out, err := Apply(src, Ops{Rotate: 90})
	require.NoError(t, err)
	// after a clockwise quarter turn the left column becomes the top row
	assert.Equal(t, uint8(255), pixel(out, 0, 0).R)
	assert.Equal(t, uint8(255), pixel(out, 1, 0).R)
	assert.Equal(t, uint8(255), pixel(out, 0, 3).B)
}

func TestApply_Crop(t *testing.T) {
	src := solid(10, 10, color.NRGBA{G: 255, A: 255})

	t.Run("inside", func(t *testing.T) {
		r := image.Rect(2, 3, 6, 8)
		out, err := Apply(src, Ops{Crop: &r})
		require.NoError(t, err)
		assert.Equal(t, image.Pt(4, 5), out.Bounds().Size())
	})

	t.Run("clamped", func(t *testing.T) {
		r := image.Rect(5, 5, 50, 50)
		out, err := Apply(src, Ops{Crop: &r})
		require.NoError(t, err)
		assert.Equal(t, image.Pt(5, 5), out.Bounds().Size())
	})

	t.Run("outside", func(t *testing.T) {
		r := image.Rect(20, 20, 30, 30)
		_, err := Apply(src, Ops{Crop: &r})
		assert.ErrorIs(t, err, ErrEmptyCrop)
	})
}

func TestApply_CropAfterRotate(t *testing.T) {
	src := solid(30, 10, color.NRGBA{R: 255, A: 255})
	r := image.Rect(0, 20, 10, 30)

	// the rectangle only fits the rotated 10x30 canvas
	out, err := Apply(src, Ops{Rotate: 90, Crop: &r})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), out.Bounds().Size())
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":     FormatPNG,
		"png":  FormatPNG,
		"jpg":  FormatJPEG,
		"jpeg": FormatJPEG,
		"webp": FormatWebP,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("tiff")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFormat_Metadata(t *testing.T) {
	assert.Equal(t, "image/jpeg", FormatJPEG.ContentType())
	assert.Equal(t, "jpg", FormatJPEG.Extension())
	assert.Equal(t, "image/webp", FormatWebP.ContentType())
	assert.Equal(t, "png", FormatPNG.Extension())
}

func TestEncodeDecode(t *testing.T) {
	src := solid(8, 6, color.NRGBA{R: 10, G: 120, B: 240, A: 255})

	for _, f := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, src, f, 0))

			img, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(8, 6), img.Bounds().Size())
		})
	}
}

func TestEncode_Formats(t *testing.T) {
	src := solid(3, 3, color.NRGBA{A: 255})

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, FormatPNG, 50))
	_, err := png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, Encode(&buf, src, FormatJPEG, 50))
	_, err = jpeg.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.ErrorIs(t, Encode(&buf, src, "bmp", 50), ErrUnknownFormat)
}

func TestDecode_GIF(t *testing.T) {
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 5, 4), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(5, 4), img.Bounds().Size())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not an image")))
	assert.Error(t, err)
}
