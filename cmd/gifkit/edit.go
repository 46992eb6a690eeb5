package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/gifkit/internal/config"
	"github.com/maauso/gifkit/internal/editor"
	"github.com/maauso/gifkit/internal/fetch"
)

type editOpts struct {
	input   string
	output  string
	rotate  float64
	filter  string
	crop    []int
	format  string
	quality int
}

func parseEdit(args []string, stderr io.Writer) (editOpts, error) {
	var o editOpts
	flags := newFlagSet("edit", stderr)
	flags.StringVarP(&o.input, "input", "i", "", "image file or http(s) URL (required)")
	flags.StringVarP(&o.output, "output", "o", "", "output path (default: input name with _edited)")
	flags.Float64Var(&o.rotate, "rotate", 0, "clockwise rotation in degrees")
	flags.StringVar(&o.filter, "filter", "none", "none, grayscale, sepia, invert, brightness or contrast")
	flags.IntSliceVar(&o.crop, "crop", nil, "crop rectangle x,y,width,height applied after rotation")
	flags.StringVarP(&o.format, "format", "f", "", "png, jpeg or webp (default: from the output extension, else png)")
	flags.IntVarP(&o.quality, "quality", "q", editor.DefaultQuality, "jpeg and webp quality 1..100")

	if err := flags.Parse(args); err != nil {
		return o, err
	}
	if o.input == "" && flags.NArg() > 0 {
		o.input = flags.Arg(0)
	}
	if o.input == "" {
		flags.Usage()
		return o, fmt.Errorf("%w: edit needs an input", errUsage)
	}
	if o.crop != nil && len(o.crop) != 4 {
		return o, fmt.Errorf("%w: --crop takes x,y,width,height", errUsage)
	}

	if o.format == "" && o.output != "" {
		o.format = strings.TrimPrefix(strings.ToLower(filepath.Ext(o.output)), ".")
	}
	format, err := editor.ParseFormat(o.format)
	if err != nil {
		return o, err
	}
	o.format = string(format)
	if o.output == "" {
		o.output = defaultOutput(o.input, "_edited."+format.Extension())
	}
	return o, nil
}

func (o editOpts) ops() editor.Ops {
	ops := editor.Ops{Rotate: o.rotate, Filter: editor.Filter(o.filter)}
	if len(o.crop) == 4 {
		r := image.Rect(o.crop[0], o.crop[1], o.crop[0]+o.crop[2], o.crop[1]+o.crop[3])
		ops.Crop = &r
	}
	return ops
}

func runEdit(ctx context.Context, o editOpts, stdout, stderr io.Writer) error {
	data, err := readImage(ctx, o.input, stderr)
	if err != nil {
		return err
	}

	img, err := editor.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	out, err := editor.Apply(img, o.ops())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := editor.Encode(&buf, out, editor.Format(o.format), o.quality); err != nil {
		return err
	}
	if err := os.WriteFile(o.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	b := out.Bounds()
	fmt.Fprintf(stdout, "wrote %s (%dx%d, %s, %d bytes)\n", o.output, b.Dx(), b.Dy(), o.format, buf.Len())
	return nil
}

func readImage(ctx context.Context, input string, stderr io.Writer) ([]byte, error) {
	if !isURL(input) {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return data, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(
		fetch.WithProxy(cfg.FetchProxyURL),
		fetch.WithLogger(cfg.NewLoggerTo(stderr)),
	)
	file, err := fetcher.FetchImage(ctx, input)
	if err != nil {
		return nil, err
	}
	return file.Data, nil
}
