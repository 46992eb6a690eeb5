package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/maauso/gifkit/internal/capture"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when the file has no decodable video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrInvalidDuration is returned when the probed duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrShortFrame is returned when ffmpeg produces fewer bytes than one frame.
	ErrShortFrame = errors.New("decoded frame is incomplete")
)

// FFmpegDecoder opens and decodes videos with the ffmpeg CLI.
type FFmpegDecoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegDecoder creates a decoder. Empty paths resolve the binaries
// through PATH.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Open implements Opener.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (capture.Media, error) {
	info, err := d.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return newClip(d, path, info), nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	SampleAspectRatio string `json:"sample_aspect_ratio"`
	Duration          string `json:"duration"`
	Tags              struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

// Probe reads the duration and display size of the first video stream.
// The size accounts for rotation metadata and non-square pixels, matching
// the frames ExtractFrame produces.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (Info, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,sample_aspect_ratio,duration:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 || out.Streams[0].Width <= 0 || out.Streams[0].Height <= 0 {
		return Info{}, ErrNoVideoStream
	}
	s := out.Streams[0]

	// Containers such as Matroska carry no per-stream duration.
	duration, ok := parseSeconds(s.Duration)
	if !ok {
		duration, ok = parseSeconds(out.Format.Duration)
	}
	if !ok {
		return Info{}, fmt.Errorf("parse duration: %q", out.Format.Duration)
	}
	if duration <= 0 {
		return Info{}, fmt.Errorf("%w: got %.2f", ErrInvalidDuration, duration)
	}

	width, height := displaySize(s.Width, s.Height, s.SampleAspectRatio, s.rotation())
	return Info{Duration: duration, Width: width, Height: height}, nil
}

func parseSeconds(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// rotation prefers the display matrix over the legacy rotate tag.
func (s probeStream) rotation() float64 {
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			return sd.Rotation
		}
	}
	if r, ok := parseSeconds(s.Tags.Rotate); ok {
		return r
	}
	return 0
}

// displaySize applies the sample aspect ratio to the coded width, then
// swaps the axes for quarter turns.
func displaySize(width, height int, sar string, rotation float64) (int, int) {
	if num, den, ok := parseRatio(sar); ok && num != den {
		width = max(1, int(math.Round(float64(width)*float64(num)/float64(den))))
	}
	quarter := int(math.Round(rotation/90)) % 2
	if quarter != 0 {
		width, height = height, width
	}
	return width, height
}

func parseRatio(s string) (int, int, bool) {
	a, b, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	num, err1 := strconv.Atoi(a)
	den, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return 0, 0, false
	}
	return num, den, true
}

// ExtractFrame decodes the frame at t seconds as raw RGBA bytes of
// width x height. ffmpeg applies the rotation first; the scale filter
// pins the output to the probed display size.
func (d *FFmpegDecoder) ExtractFrame(ctx context.Context, path string, t float64, width, height int) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64), // input seek: fast and frame accurate
		"-i", path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d,setsar=1", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}

	out, err := d.runFFmpeg(ctx, args)
	if err != nil {
		return nil, err
	}
	want := width * height * 4
	if len(out) < want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d at %.3fs", ErrShortFrame, len(out), want, t)
	}
	return out[:want], nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns its
// stdout. Failures carry the stderr output.
func (d *FFmpegDecoder) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

var _ Opener = (*FFmpegDecoder)(nil)
