// Package media decodes video files through the ffmpeg and ffprobe CLIs and
// exposes them as seekable capture sources.
package media

import (
	"context"

	"github.com/maauso/gifkit/internal/capture"
)

// Opener opens a local video file as a capture source.
type Opener interface {
	// Open probes the file at path and returns a seekable source. The file
	// must stay in place until the source is no longer used.
	Open(ctx context.Context, path string) (capture.Media, error)
}

// Info is the probed metadata of a video file.
type Info struct {
	Duration float64
	Width    int
	Height   int
}
