package encode

import (
	"context"
	"log/slog"

	"github.com/maauso/gifkit/internal/gifenc"
	"github.com/maauso/gifkit/internal/raster"
)

// Task is one frame handed to a worker.
type Task struct {
	Frame   raster.Frame
	First   bool
	Last    bool
	Options Options
}

// Chunk is the encoded output for one task, as page slices.
type Chunk struct {
	Index int
	Pages [][]byte
	Len   int
}

// Worker encodes tasks. A worker is used by a single goroutine.
type Worker interface {
	Encode(ctx context.Context, task Task) (Chunk, error)
	Close() error
}

// Runtime creates workers for a session.
type Runtime interface {
	NewWorker() (Worker, error)
}

// LocalRuntime runs encoders in-process.
type LocalRuntime struct {
	logger *slog.Logger
}

// NewLocalRuntime returns a runtime backed by gifenc. A nil logger uses
// slog.Default().
func NewLocalRuntime(logger *slog.Logger) *LocalRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRuntime{logger: logger}
}

// NewWorker implements Runtime.
func (r *LocalRuntime) NewWorker() (Worker, error) {
	return &localWorker{logger: r.logger}, nil
}

type localWorker struct {
	logger *slog.Logger
	tasks  int
}

func (w *localWorker) Encode(ctx context.Context, task Task) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	f := task.Frame
	enc := gifenc.NewEncoder(f.Width, f.Height, encoderOptions(task)...)
	if err := enc.AddFrame(f); err != nil {
		return Chunk{}, err
	}
	if err := enc.Finish(); err != nil {
		return Chunk{}, err
	}
	pages, err := enc.Pages()
	if err != nil {
		return Chunk{}, err
	}
	w.tasks++
	return Chunk{Index: f.Index, Pages: pages, Len: enc.Len()}, nil
}

func (w *localWorker) Close() error {
	w.logger.Debug("encode worker closed", slog.Int("tasks", w.tasks))
	return nil
}

func encoderOptions(task Task) []gifenc.Option {
	o := task.Options
	opts := []gifenc.Option{
		gifenc.WithFirstFrame(task.First),
		gifenc.WithTrailer(task.Last),
		gifenc.WithRepeat(o.Repeat),
		gifenc.WithQuality(o.Quality),
		gifenc.WithDispose(o.Dispose),
		gifenc.WithDelay(o.Delay),
	}
	if o.Transparent != nil {
		opts = append(opts, gifenc.WithTransparent(*o.Transparent))
	}
	return opts
}

var (
	_ Runtime = (*LocalRuntime)(nil)
	_ Worker  = (*localWorker)(nil)
)
