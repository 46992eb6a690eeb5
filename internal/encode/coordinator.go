// Package encode fans frames out to a pool of GIF encoder workers and
// reassembles their output, in frame order, into one GIF stream.
package encode

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"runtime"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/gifkit/internal/gifenc"
	"github.com/maauso/gifkit/internal/raster"
)

// Pool bounds and defaults.
const (
	MinWorkers = 2
	MaxWorkers = 4

	DefaultQuality = 15
	DefaultRepeat  = 0
	// DisposeAuto lets the encoder pick the disposal method.
	DisposeAuto = -1

	defaultQueueDepth = 2
)

// ContentType is the media type of every artifact.
const ContentType = "image/gif"

// Options describe one encode job.
type Options struct {
	Width  int `validate:"required,min=1,max=65535"`
	Height int `validate:"required,min=1,max=65535"`
	// Frames is the number of frames that will be added.
	Frames int `validate:"required,min=1"`
	// Quality is the quantizer sampling factor; 0 selects DefaultQuality.
	Quality int `validate:"min=0,max=100"`
	// Repeat is the loop count: -1 plays once, 0 loops forever.
	Repeat int `validate:"min=-1,max=65535"`
	// Delay is the default frame delay in hundredths of a second.
	Delay       int `validate:"min=0,max=65535"`
	Dispose     int `validate:"min=-1,max=7"`
	Transparent *color.RGBA
	// Workers is a pool size hint; 0 uses GOMAXPROCS.
	Workers int `validate:"min=0,max=64"`
}

// DefaultOptions returns options with the converter defaults for a
// width×height stream of n frames.
func DefaultOptions(width, height, n int) Options {
	return Options{
		Width:   width,
		Height:  height,
		Frames:  n,
		Quality: DefaultQuality,
		Repeat:  DefaultRepeat,
		Dispose: DisposeAuto,
	}
}

// Progress reports how many frames the pool has finished.
type Progress struct {
	Done     int
	Total    int
	Fraction float64
}

// Artifact is a complete GIF stream.
type Artifact struct {
	Data   []byte
	Width  int
	Height int
	Frames int
}

// Coordinator starts encode sessions on a worker runtime.
type Coordinator struct {
	rt             Runtime
	logger         *slog.Logger
	validate       *validator.Validate
	defaultWorkers int
	queueDepth     int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithDefaultWorkers sets the pool size hint used when Options.Workers is 0.
func WithDefaultWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.defaultWorkers = n
	}
}

// WithQueueDepth sets how many pending frames each worker may have queued
// before Add blocks.
func WithQueueDepth(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// NewCoordinator creates a coordinator for rt.
func NewCoordinator(rt Runtime, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		rt:         rt,
		validate:   validator.New(),
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// WorkerCount returns the pool size for a hint: GOMAXPROCS when the hint
// is not positive, clamped to [MinWorkers, MaxWorkers].
func WorkerCount(hint int) int {
	if hint <= 0 {
		hint = runtime.GOMAXPROCS(0)
	}
	return max(MinWorkers, min(hint, MaxWorkers))
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithProgress registers an encode progress callback. It is called from
// worker goroutines, one call at a time, and must not call back into the
// session.
func WithProgress(fn func(Progress)) SessionOption {
	return func(s *Session) {
		s.progress = fn
	}
}

// Start validates opts, creates the worker pool and returns a session
// ready to accept frames. If any worker fails to start, the workers
// already created are closed and an *InitError is returned.
func (c *Coordinator) Start(ctx context.Context, opts Options, sessOpts ...SessionOption) (*Session, error) {
	if c.rt == nil {
		return nil, &InitError{Err: ErrNoRuntime}
	}
	if err := c.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("encode: invalid options: %w", err)
	}
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}

	hint := opts.Workers
	if hint <= 0 {
		hint = c.defaultWorkers
	}
	n := WorkerCount(hint)

	workers := make([]Worker, 0, n)
	for i := 0; i < n; i++ {
		w, err := c.rt.NewWorker()
		if err != nil {
			closeWorkers(c.logger, workers)
			c.logger.Error("failed to start encode workers",
				slog.Int("started", i),
				slog.Int("requested", n),
				slog.String("error", err.Error()),
			)
			return nil, &InitError{Err: err}
		}
		workers = append(workers, w)
	}

	sctx, cancel := context.WithCancelCause(ctx)
	s := &Session{
		opts:    opts,
		logger:  c.logger,
		ctx:     sctx,
		cancel:  cancel,
		tasks:   make(chan Task, n*c.queueDepth),
		workers: workers,
		chunks:  make([]Chunk, opts.Frames),
	}
	for _, opt := range sessOpts {
		opt(s)
	}

	for _, w := range workers {
		s.wg.Add(1)
		go s.run(w)
	}

	c.logger.Info("encode session started",
		slog.Int("workers", n),
		slog.Int("frames", opts.Frames),
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
		slog.Int("quality", opts.Quality),
	)
	return s, nil
}

// EncodeAll runs a session over a complete, ordered frame list.
func (c *Coordinator) EncodeAll(ctx context.Context, opts Options, frames []raster.Frame, sessOpts ...SessionOption) (*Artifact, error) {
	opts.Frames = len(frames)
	s, err := c.Start(ctx, opts, sessOpts...)
	if err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := s.Add(f); err != nil {
			s.Abort(err)
			return nil, err
		}
	}
	return s.Finish()
}

// Session is one running encode job.
type Session struct {
	opts     Options
	logger   *slog.Logger
	progress func(Progress)

	ctx    context.Context
	cancel context.CancelCauseFunc

	tasks   chan Task
	workers []Worker
	wg      sync.WaitGroup

	addMu  sync.Mutex
	next   int
	closed bool

	mu     sync.Mutex
	chunks []Chunk
	done   int
	err    error

	finishOnce sync.Once
	artifact   *Artifact
	finishErr  error
}

// Add queues the next frame. Frames must arrive with contiguous indices
// starting at 0. Add blocks while the queue is full and takes ownership
// of the frame's pixel buffer.
func (s *Session) Add(f raster.Frame) error {
	s.addMu.Lock()
	defer s.addMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.ctx.Err() != nil {
		return s.cause()
	}
	if s.next >= s.opts.Frames {
		return fmt.Errorf("%w: %d announced", ErrTooManyFrames, s.opts.Frames)
	}
	if f.Index != s.next {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, f.Index, s.next)
	}
	if f.Width != s.opts.Width || f.Height != s.opts.Height {
		return fmt.Errorf("%w: frame %d is %dx%d", gifenc.ErrFrameMismatch, f.Index, f.Width, f.Height)
	}

	task := Task{
		Frame:   f,
		First:   f.Index == 0,
		Last:    f.Index == s.opts.Frames-1,
		Options: s.opts,
	}
	select {
	case s.tasks <- task:
		s.next++
		return nil
	case <-s.ctx.Done():
		return s.cause()
	}
}

// Finish waits for every queued frame, closes the workers and returns the
// assembled artifact. The result is computed once; later calls return it
// again.
func (s *Session) Finish() (*Artifact, error) {
	s.finishOnce.Do(func() {
		s.shutdown()
		s.artifact, s.finishErr = s.assemble()
		s.cancel(nil)
		if s.finishErr != nil {
			s.logger.Error("encode session failed", slog.String("error", s.finishErr.Error()))
			return
		}
		s.logger.Info("encode session finished",
			slog.Int("frames", s.artifact.Frames),
			slog.Int("bytes", len(s.artifact.Data)),
		)
	})
	return s.artifact, s.finishErr
}

// Abort stops the session and releases its workers. A nil cause records
// ErrAborted. Abort after Finish has no effect.
func (s *Session) Abort(cause error) {
	if cause == nil {
		cause = ErrAborted
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = cause
	}
	s.mu.Unlock()
	s.cancel(cause)

	s.finishOnce.Do(func() {
		s.shutdown()
		s.finishErr = s.cause()
		s.logger.Warn("encode session aborted", slog.String("cause", cause.Error()))
	})
}

func (s *Session) run(w Worker) {
	defer s.wg.Done()
	for task := range s.tasks {
		if s.ctx.Err() != nil {
			continue
		}
		chunk, err := w.Encode(s.ctx, task)
		if err != nil {
			s.fail(&EncodeError{Index: task.Frame.Index, Err: err})
			continue
		}
		s.complete(task.Frame.Index, chunk)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel(err)
}

func (s *Session) complete(index int, chunk Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks[index] = chunk
	s.done++
	if s.progress != nil {
		s.progress(Progress{
			Done:     s.done,
			Total:    s.opts.Frames,
			Fraction: float64(s.done) / float64(s.opts.Frames),
		})
	}
}

func (s *Session) cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return context.Cause(s.ctx)
}

func (s *Session) shutdown() {
	s.addMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.tasks)
	}
	s.addMu.Unlock()

	s.wg.Wait()
	closeWorkers(s.logger, s.workers)
}

func (s *Session) assemble() (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if s.ctx.Err() != nil {
		return nil, context.Cause(s.ctx)
	}
	if s.done != s.opts.Frames {
		return nil, fmt.Errorf("%w: %d of %d frames", ErrIncomplete, s.done, s.opts.Frames)
	}

	size := 0
	for _, c := range s.chunks {
		for _, p := range c.Pages {
			size += len(p)
		}
	}
	data := make([]byte, 0, size)
	for _, c := range s.chunks {
		for _, p := range c.Pages {
			data = append(data, p...)
		}
	}
	return &Artifact{
		Data:   data,
		Width:  s.opts.Width,
		Height: s.opts.Height,
		Frames: s.opts.Frames,
	}, nil
}

func closeWorkers(logger *slog.Logger, workers []Worker) {
	var errs []error
	for _, w := range workers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("failed to close encode workers", slog.String("error", err.Error()))
	}
}
