package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/gifkit/internal/bootstrap"
	"github.com/maauso/gifkit/internal/capture"
	"github.com/maauso/gifkit/internal/config"
	"github.com/maauso/gifkit/internal/job"
)

type convertOpts struct {
	input       string
	output      string
	start       float64
	end         float64
	fps         int
	width       int
	quality     int
	repeat      int
	transparent string
	pushToS3    bool
	quiet       bool
}

func parseConvert(args []string, stderr io.Writer) (convertOpts, error) {
	var o convertOpts
	flags := newFlagSet("convert", stderr)
	flags.StringVarP(&o.input, "input", "i", "", "video file or http(s) URL (required)")
	flags.StringVarP(&o.output, "output", "o", "", "output GIF path (default: input name with .gif)")
	flags.Float64VarP(&o.start, "start", "s", 0, "trim start in seconds")
	flags.Float64VarP(&o.end, "end", "e", 0, "trim end in seconds (required)")
	flags.IntVarP(&o.fps, "fps", "r", capture.DefaultFPS, "frames per second: 5, 10, 15, 20, 24 or 30")
	flags.IntVarP(&o.width, "width", "w", capture.DefaultWidth, "output width: 160, 240, 320, 480 or 640")
	flags.IntVarP(&o.quality, "quality", "q", 0, "quantizer sampling factor 1..100, lower is better (default from DEFAULT_QUALITY)")
	flags.IntVar(&o.repeat, "repeat", 0, "loop count: -1 plays once, 0 loops forever")
	flags.StringVar(&o.transparent, "transparent", "", "CSS color keyed out as transparent, e.g. #00ff00")
	flags.BoolVar(&o.pushToS3, "s3", false, "also publish the GIF to S3_BUCKET")
	flags.BoolVar(&o.quiet, "quiet", false, "hide progress bars")

	if err := flags.Parse(args); err != nil {
		return o, err
	}
	if o.input == "" && flags.NArg() > 0 {
		o.input = flags.Arg(0)
	}
	if o.input == "" {
		flags.Usage()
		return o, fmt.Errorf("%w: convert needs an input", errUsage)
	}
	if !flags.Changed("end") {
		return o, fmt.Errorf("%w: convert needs --end", errUsage)
	}
	if o.output == "" {
		o.output = defaultOutput(o.input, ".gif")
	}
	return o, nil
}

// defaultOutput replaces the extension of a file or URL base name.
func defaultOutput(input, ext string) string {
	base := input
	if isURL(input) {
		base = filepath.Base(strings.SplitN(strings.SplitN(input, "?", 2)[0], "#", 2)[0])
		if base == "" || base == "." || base == "/" {
			base = "output"
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

func runConvert(ctx context.Context, o convertOpts, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLoggerTo(stderr)
	if !o.quiet {
		// logs would tear the progress bars
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var serviceOpts []job.ServiceOption
	var bars *progress
	if !o.quiet {
		bars = newProgress(stderr)
		serviceOpts = append(serviceOpts, job.WithListener(bars.Update))
	}

	deps, err := bootstrap.NewDependencies(cfg, logger, serviceOpts...)
	if err != nil {
		return err
	}

	input := job.ConvertInput{
		Start:       o.start,
		End:         o.end,
		FPS:         o.fps,
		Width:       o.width,
		Quality:     o.quality,
		Repeat:      o.repeat,
		Transparent: o.transparent,
		PushToS3:    o.pushToS3,
	}
	if isURL(o.input) {
		input.SourceURL = o.input
	} else {
		if _, err := os.Stat(o.input); err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		input.VideoPath = o.input
	}

	result, err := deps.ConvertService.Convert(ctx, input)
	if bars != nil {
		bars.Close()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("conversion cancelled")
		}
		if result != nil {
			return fmt.Errorf("%s error: %w", result.ErrorKind, err)
		}
		return err
	}

	rc, _, err := deps.ConvertService.Artifact(ctx, result.ID)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := writeFile(o.output, rc); err != nil {
		return err
	}
	_ = deps.ConvertService.DeleteJob(context.WithoutCancel(ctx), result.ID)

	fmt.Fprintf(stdout, "wrote %s (%dx%d, %d frames, %d bytes)\n",
		o.output, result.Width, result.Height, result.Frames, result.ArtifactSize)
	if result.ArtifactURL != "" {
		fmt.Fprintf(stdout, "published %s\n", result.ArtifactURL)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
