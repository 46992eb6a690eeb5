package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mazznoer/csscolorparser"

	"github.com/maauso/gifkit/internal/capture"
	"github.com/maauso/gifkit/internal/encode"
	"github.com/maauso/gifkit/internal/fetch"
	"github.com/maauso/gifkit/internal/media"
	"github.com/maauso/gifkit/internal/storage"
)

// Static errors for the conversion service.
var (
	// ErrJobInFlight is returned when a conversion is requested while another is active.
	ErrJobInFlight = errors.New("job: a conversion is already in progress")
	// ErrJobNotActive is returned when processing a job that does not hold the active slot.
	ErrJobNotActive = errors.New("job: job is not the active conversion")
	// ErrInvalidInput is returned when the conversion input fails validation.
	ErrInvalidInput = errors.New("job: invalid input")
	// ErrNoSource is returned when the input names no video.
	ErrNoSource = errors.New("job: one of video path, video data or source URL is required")
	// ErrInvalidColor is returned when the transparent color cannot be parsed.
	ErrInvalidColor = errors.New("job: invalid transparent color")
	// ErrNoFetcher is returned for a URL source when no fetcher is configured.
	ErrNoFetcher = errors.New("job: no fetcher configured for URL sources")
	// ErrArtifactNotReady is returned when the artifact of an unfinished job is requested.
	ErrArtifactNotReady = errors.New("job: artifact not ready")
	// ErrStorage wraps failures saving or publishing the artifact.
	ErrStorage = errors.New("job: storage failure")
)

// ArtifactKeyPrefix is the S3 key prefix of published GIFs.
const ArtifactKeyPrefix = "gifs/"

// ConvertInput contains the input parameters for a conversion. Exactly one
// of VideoPath, VideoData or SourceURL selects the source.
type ConvertInput struct {
	// VideoPath is a video already on local disk. It is not removed.
	VideoPath string
	// VideoData is an uploaded video, stored as a temp file.
	VideoData []byte
	// VideoName is the file name hint for VideoData.
	VideoName string
	// SourceURL is a remote video downloaded through the fetcher.
	SourceURL string `validate:"omitempty,url"`

	Start float64 `validate:"gte=0"`
	End   float64 `validate:"gtfield=Start"`
	// FPS and Width of 0 select the capture defaults.
	FPS   int `validate:"gte=0"`
	Width int `validate:"gte=0"`
	// Quality of 0 selects the service default.
	Quality int `validate:"min=0,max=100"`
	Repeat  int `validate:"min=-1,max=65535"`
	// Transparent is a CSS color string, empty for none.
	Transparent string

	PushToS3 bool
}

// VideoFetcher downloads remote videos.
type VideoFetcher interface {
	FetchVideo(ctx context.Context, rawURL string) (*fetch.File, error)
}

// Event reports a change in a job's progress or status.
type Event struct {
	JobID  string
	Status Status
	// CaptureDone and CaptureTotal count sampled frames.
	CaptureDone  int
	CaptureTotal int
	// EncodeProgress is the fraction of frames encoded, 0..1.
	EncodeProgress float64
	// Err is set on the FAILED event.
	Err error
}

// Listener receives job events. It is called synchronously from capture
// and encoder goroutines and must not block.
type Listener func(Event)

// ConvertService runs video-to-GIF conversions. At most one conversion is
// active at a time.
type ConvertService struct {
	repo        Repository
	store       storage.Storage
	opener      media.Opener
	coordinator *encode.Coordinator
	fetcher     VideoFetcher
	logger      *slog.Logger
	validate    *validator.Validate

	captureOpts    []capture.Option
	defaultQuality int
	workers        int
	listeners      []Listener

	mu      sync.Mutex
	active  string
	cancels map[string]context.CancelCauseFunc
}

// ServiceOption configures a ConvertService.
type ServiceOption func(*ConvertService)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *ConvertService) {
		s.logger = logger
	}
}

// WithFetcher enables URL sources.
func WithFetcher(f VideoFetcher) ServiceOption {
	return func(s *ConvertService) {
		s.fetcher = f
	}
}

// WithCaptureOptions passes options to every capture driver.
func WithCaptureOptions(opts ...capture.Option) ServiceOption {
	return func(s *ConvertService) {
		s.captureOpts = append(s.captureOpts, opts...)
	}
}

// WithDefaultQuality sets the quality used when the input leaves it at 0.
func WithDefaultQuality(q int) ServiceOption {
	return func(s *ConvertService) {
		if q > 0 {
			s.defaultQuality = q
		}
	}
}

// WithWorkers sets the encoder pool size hint.
func WithWorkers(n int) ServiceOption {
	return func(s *ConvertService) {
		s.workers = n
	}
}

// WithListener registers a job event listener.
func WithListener(l Listener) ServiceOption {
	return func(s *ConvertService) {
		s.listeners = append(s.listeners, l)
	}
}

// NewConvertService creates a ConvertService.
func NewConvertService(repo Repository, store storage.Storage, opener media.Opener, coordinator *encode.Coordinator, opts ...ServiceOption) *ConvertService {
	s := &ConvertService{
		repo:           repo,
		store:          store,
		opener:         opener,
		coordinator:    coordinator,
		validate:       validator.New(),
		defaultQuality: encode.DefaultQuality,
		cancels:        make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateJob validates input and persists a new IN_QUEUE job. Uploaded
// video data is written to temp storage before the job is returned.
// Returns ErrJobInFlight while another conversion is active.
func (s *ConvertService) CreateJob(ctx context.Context, input ConvertInput) (*Job, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	job := New()
	job.PushToS3 = input.PushToS3
	job.Params = Params{
		Start:       input.Start,
		End:         input.End,
		FPS:         input.FPS,
		Width:       input.Width,
		Quality:     input.Quality,
		Repeat:      input.Repeat,
		Transparent: input.Transparent,
	}
	if job.Params.Quality == 0 {
		job.Params.Quality = s.defaultQuality
	}

	if err := s.acquire(job.ID); err != nil {
		return nil, err
	}

	switch {
	case input.VideoPath != "":
		job.Source = filepath.Base(input.VideoPath)
		job.SetInput(input.VideoPath, false)
	case len(input.VideoData) > 0:
		name := input.VideoName
		if name == "" {
			name = "upload.mp4"
		}
		job.Source = name
		path, err := s.store.SaveTemp(ctx, job.ID+"_"+filepath.Base(name), bytes.NewReader(input.VideoData))
		if err != nil {
			s.release(job.ID)
			return nil, fmt.Errorf("%w: save upload: %w", ErrStorage, err)
		}
		job.SetInput(path, true)
	default:
		job.Source = input.SourceURL
	}

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("source", job.Source),
		slog.Float64("start", input.Start),
		slog.Float64("end", input.End),
		slog.Int("fps", input.FPS),
		slog.Int("width", input.Width),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		s.release(job.ID)
		return nil, err
	}
	return job, nil
}

func (s *ConvertService) validateInput(input ConvertInput) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	params := capture.Params{Start: input.Start, End: input.End, FPS: input.FPS, Width: input.Width}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	sources := 0
	for _, set := range []bool{input.VideoPath != "", len(input.VideoData) > 0, input.SourceURL != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoSource)
	}
	if input.SourceURL != "" && s.fetcher == nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoFetcher)
	}
	if _, err := ParseColor(input.Transparent); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func (s *ConvertService) acquire(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return fmt.Errorf("%w: %s", ErrJobInFlight, s.active)
	}
	s.active = jobID
	return nil
}

func (s *ConvertService) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == jobID {
		s.active = ""
	}
	delete(s.cancels, jobID)
}

// Active returns the ID of the active job, or "".
func (s *ConvertService) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Convert creates a job and runs it to completion. The returned job is
// terminal; a FAILED or CANCELLED job is returned together with its error.
func (s *ConvertService) Convert(ctx context.Context, input ConvertInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	err = s.ProcessExistingJob(ctx, job.ID)

	final, findErr := s.repo.FindByID(context.WithoutCancel(ctx), job.ID)
	if findErr != nil {
		return nil, errors.Join(err, findErr)
	}
	return final, err
}

// ProcessExistingJob runs the conversion for a job created by CreateJob.
// It blocks until the job is terminal.
func (s *ConvertService) ProcessExistingJob(ctx context.Context, jobID string) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		s.release(jobID)
		return err
	}
	if job.GetStatus() != StatusInQueue {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.GetStatus())
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.active != jobID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotActive, jobID)
	}
	s.cancels[jobID] = cancel
	s.mu.Unlock()
	defer s.release(jobID)

	r := &run{svc: s, job: job}
	err = r.execute(runCtx)
	r.finish(context.WithoutCancel(ctx), err)
	return err
}

// CancelJob stops a running job or cancels a queued one.
func (s *ConvertService) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	if !running && s.active == jobID {
		// a queued job gives up the slot before it can start
		s.active = ""
	}
	s.mu.Unlock()
	if running {
		cancel(context.Canceled)
		return nil
	}

	if err := job.Cancel(); err != nil {
		return err
	}
	if job.TempInput {
		_ = s.store.CleanupTemp(ctx, []string{job.InputPath})
	}
	s.emit(job, nil)
	return s.repo.Save(ctx, job)
}

// GetJob retrieves a job by ID.
func (s *ConvertService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ConvertService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Artifact opens the GIF of a completed job. The caller closes the reader.
func (s *ConvertService) Artifact(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.GetStatus() != StatusCompleted || job.ArtifactPath == "" {
		return nil, job, fmt.Errorf("%w: job %s is %s", ErrArtifactNotReady, id, job.GetStatus())
	}
	rc, err := s.store.LoadTemp(ctx, job.ArtifactPath)
	if err != nil {
		return nil, job, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return rc, job, nil
}

// DeleteJob removes a terminal job and its artifact file.
func (s *ConvertService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.GetStatus())
	}
	if job.ArtifactPath != "" {
		if err := s.store.CleanupTemp(ctx, []string{job.ArtifactPath}); err != nil {
			s.logger.Warn("failed to remove artifact",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.repo.Delete(ctx, id)
}

// Prune deletes terminal jobs that completed more than maxAge ago,
// together with their artifact files. It returns the number removed.
func (s *ConvertService) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := s.repo.DeleteTerminal(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	var paths []string
	for _, job := range removed {
		if job.ArtifactPath != "" {
			paths = append(paths, job.ArtifactPath)
		}
	}
	if len(paths) > 0 {
		if err := s.store.CleanupTemp(ctx, paths); err != nil {
			s.logger.Warn("failed to remove pruned artifacts", slog.String("error", err.Error()))
		}
	}
	if len(removed) > 0 {
		s.logger.Info("pruned jobs",
			slog.Int("count", len(removed)),
			slog.Duration("max_age", maxAge),
		)
	}
	return len(removed), nil
}

// PruneEvery calls Prune on every tick of interval until ctx is done.
func (s *ConvertService) PruneEvery(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx, maxAge); err != nil {
				s.logger.Error("prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *ConvertService) emit(job *Job, err error) {
	if len(s.listeners) == 0 {
		return
	}
	p := job.Progress()
	ev := Event{
		JobID:          job.ID,
		Status:         p.Status,
		CaptureDone:    p.CaptureDone,
		CaptureTotal:   p.CaptureTotal,
		EncodeProgress: p.EncodeProgress,
		Err:            err,
	}
	for _, l := range s.listeners {
		l(ev)
	}
}

// run is one execution of a job. Updates are serialized so listeners and
// the repository never see an older state after a newer one.
type run struct {
	svc *ConvertService
	job *Job

	updateMu sync.Mutex
}

// update persists the job and, when notify is set, emits an event.
func (r *run) update(ctx context.Context, notify bool, err error) {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()
	if serr := r.svc.repo.Save(ctx, r.job); serr != nil {
		r.svc.logger.Error("failed to save job",
			slog.String("job_id", r.job.ID),
			slog.String("error", serr.Error()),
		)
	}
	if notify {
		r.svc.emit(r.job, err)
	}
}

func (r *run) execute(ctx context.Context) error {
	s := r.svc
	logger := s.logger.With(slog.String("job_id", r.job.ID))

	if err := r.job.Start(); err != nil {
		return err
	}
	r.update(ctx, true, nil)

	if r.job.InputPath == "" {
		path, err := r.download(ctx)
		if err != nil {
			return err
		}
		r.job.SetInput(path, true)
		r.update(ctx, false, nil)
	}

	m, err := s.opener.Open(ctx, r.job.InputPath)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}

	p := r.job.Params
	plan, err := capture.NewPlan(capture.Params{Start: p.Start, End: p.End, FPS: p.FPS, Width: p.Width}, m)
	if err != nil {
		return err
	}
	r.job.SetPlan(plan.Width, plan.Height, plan.NumFrames)
	r.update(ctx, false, nil)

	transparent, err := ParseColor(p.Transparent)
	if err != nil {
		return err
	}

	opts := encode.DefaultOptions(plan.Width, plan.Height, plan.NumFrames)
	opts.Quality = p.Quality
	opts.Repeat = p.Repeat
	opts.Delay = plan.Delay
	opts.Transparent = transparent
	opts.Workers = s.workers

	session, err := s.coordinator.Start(ctx, opts, encode.WithProgress(func(pr encode.Progress) {
		r.job.UpdateEncode(pr.Fraction)
		r.update(ctx, true, nil)
	}))
	if err != nil {
		return err
	}

	driverOpts := append([]capture.Option{
		capture.WithLogger(logger),
		capture.WithProgress(func(done, _ int) {
			r.job.UpdateCapture(done)
			r.update(ctx, true, nil)
		}),
	}, s.captureOpts...)

	if err := capture.NewDriver(driverOpts...).Capture(ctx, plan, m, session.Add); err != nil {
		session.Abort(err)
		return err
	}

	if err := r.job.BeginEncoding(); err != nil {
		session.Abort(err)
		return err
	}
	r.update(ctx, true, nil)

	artifact, err := session.Finish()
	if err != nil {
		return err
	}
	return r.store(ctx, artifact)
}

func (r *run) download(ctx context.Context) (string, error) {
	file, err := r.svc.fetcher.FetchVideo(ctx, r.job.Source)
	if err != nil {
		return "", fmt.Errorf("fetch video: %w", err)
	}
	path, err := r.svc.store.SaveTemp(ctx, r.job.ID+"_"+file.Name, bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("%w: save download: %w", ErrStorage, err)
	}
	return path, nil
}

func (r *run) store(ctx context.Context, artifact *encode.Artifact) error {
	s := r.svc
	name := r.job.ID + ".gif"

	path, err := s.store.SaveTemp(ctx, name, bytes.NewReader(artifact.Data))
	if err != nil {
		return fmt.Errorf("%w: save artifact: %w", ErrStorage, err)
	}

	var url string
	if r.job.PushToS3 {
		url, err = s.store.Publish(ctx, ArtifactKeyPrefix+name, encode.ContentType, bytes.NewReader(artifact.Data))
		if err != nil {
			return fmt.Errorf("%w: publish artifact: %w", ErrStorage, err)
		}
	}
	r.job.SetArtifact(path, url, len(artifact.Data))
	return nil
}

// finish moves the job to its terminal state and removes temp inputs.
func (r *run) finish(ctx context.Context, err error) {
	s := r.svc
	logger := s.logger.With(slog.String("job_id", r.job.ID))

	if r.job.TempInput && r.job.InputPath != "" {
		if cerr := s.store.CleanupTemp(ctx, []string{r.job.InputPath}); cerr != nil {
			logger.Warn("failed to remove temp input", slog.String("error", cerr.Error()))
		}
	}

	switch {
	case err == nil:
		if terr := r.job.Complete(); terr != nil {
			logger.Error("failed to complete job", slog.String("error", terr.Error()))
		}
		logger.Info("job completed",
			slog.Int("frames", r.job.Frames),
			slog.Int("bytes", r.job.ArtifactSize),
			slog.String("url", r.job.ArtifactURL),
		)
	case errors.Is(err, context.Canceled):
		_ = r.job.Cancel()
		logger.Info("job cancelled")
	default:
		kind := Classify(err)
		_ = r.job.Fail(kind, err.Error())
		logger.Error("job failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}

	r.update(ctx, true, err)
}

// Classify maps a conversion error to its ErrorKind.
func Classify(err error) ErrorKind {
	var (
		cfgErr    *capture.ConfigError
		capErr    *capture.CaptureError
		encErr    *encode.EncodeError
		initErr   *encode.InitError
		ffErr     *media.FFmpegError
		statusErr *fetch.StatusError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidColor),
		errors.Is(err, media.ErrNoVideoStream),
		errors.Is(err, media.ErrInvalidDuration):
		return KindConfig
	case errors.As(err, &capErr):
		return KindCapture
	case errors.As(err, &encErr):
		return KindEncode
	case errors.As(err, &initErr),
		errors.As(err, &ffErr),
		errors.Is(err, media.ErrFFprobeExecution),
		errors.Is(err, encode.ErrNoRuntime):
		return KindEnvironment
	case errors.As(err, &statusErr),
		errors.Is(err, fetch.ErrInvalidURL),
		errors.Is(err, fetch.ErrNetwork),
		errors.Is(err, fetch.ErrOpaqueResponse),
		errors.Is(err, fetch.ErrUnexpectedContentType),
		errors.Is(err, fetch.ErrTooLarge):
		return KindFetch
	case errors.Is(err, ErrStorage):
		return KindStorage
	}
	return KindInternal
}

// ParseColor parses a CSS color string such as "#00ff00", "lime" or
// "rgb(0, 255, 0)". An empty string yields nil.
func ParseColor(s string) (*color.RGBA, error) {
	if s == "" {
		return nil, nil
	}
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidColor, s, err)
	}
	return &color.RGBA{
		R: channel(c.R),
		G: channel(c.G),
		B: channel(c.B),
		A: 0xff,
	}, nil
}

func channel(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 1) * 255))
}
