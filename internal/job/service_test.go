package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/gifkit/internal/capture"
	"github.com/maauso/gifkit/internal/encode"
	"github.com/maauso/gifkit/internal/fetch"
	"github.com/maauso/gifkit/internal/media"
	"github.com/maauso/gifkit/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMedia renders solid frames whose red channel follows the seek time.
type fakeMedia struct {
	duration float64
	width    int
	height   int
	// hang makes every seek wait for cancellation.
	hang    bool
	failAt  float64
	failErr error

	mu    sync.Mutex
	seeks int
	frame *image.RGBA
}

func newFakeMedia(duration float64, w, h int) *fakeMedia {
	return &fakeMedia{duration: duration, width: w, height: h, failAt: -1}
}

func (m *fakeMedia) Duration() float64 { return m.duration }

func (m *fakeMedia) Size() (int, int) { return m.width, m.height }

func (m *fakeMedia) Seek(_ context.Context, t float64) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks++

	ch := make(chan error, 1)
	if m.hang {
		return ch
	}
	if math.Abs(t-m.failAt) < 1e-9 {
		ch <- m.failErr
		return ch
	}
	img := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	r := uint8(int(math.Round(t*40)) % 256)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, 80, 160, 255
	}
	m.frame = img
	ch <- nil
	return ch
}

func (m *fakeMedia) Frame() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frame == nil {
		return nil
	}
	return m.frame
}

func (m *fakeMedia) seekCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seeks
}

// fakeOpener hands out one media handle and records the opened paths.
type fakeOpener struct {
	media *fakeMedia
	err   error

	mu     sync.Mutex
	paths  []string
	exists []bool
}

func (o *fakeOpener) Open(_ context.Context, path string) (capture.Media, error) {
	_, statErr := os.Stat(path)
	o.mu.Lock()
	o.paths = append(o.paths, path)
	o.exists = append(o.exists, statErr == nil)
	o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.media, nil
}

type fakeFetcher struct {
	file  *fetch.File
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchVideo(_ context.Context, _ string) (*fetch.File, error) {
	f.calls.Add(1)
	return f.file, f.err
}

// publishingStorage is a LocalStorage whose Publish is mocked.
type publishingStorage struct {
	*storage.LocalStorage
	mock.Mock
}

func (s *publishingStorage) Publish(ctx context.Context, key, contentType string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := s.Called(ctx, key, contentType, body)
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc    *ConvertService
	repo   *MemoryRepository
	store  storage.Storage
	opener *fakeOpener
	media  *fakeMedia

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, store storage.Storage, opts ...ServiceOption) *fixture {
	t.Helper()
	if store == nil {
		local, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		store = local
	}
	f := &fixture{
		repo:  NewMemoryRepository(),
		store: store,
		media: newFakeMedia(4, 320, 180),
	}
	f.opener = &fakeOpener{media: f.media}

	coord := encode.NewCoordinator(encode.NewLocalRuntime(quietLogger()), encode.WithLogger(quietLogger()))
	opts = append([]ServiceOption{
		WithLogger(quietLogger()),
		WithCaptureOptions(capture.WithSeekTimeout(time.Second)),
		WithListener(func(ev Event) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		}),
	}, opts...)
	f.svc = NewConvertService(f.repo, store, f.opener, coord, opts...)
	return f
}

func (f *fixture) recorded() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func validInput() ConvertInput {
	return ConvertInput{
		VideoPath: "/videos/clip.mp4",
		Start:     0,
		End:       1,
		FPS:       10,
		Width:     160,
	}
}

func TestConvert_LocalFile(t *testing.T) {
	f := newFixture(t, nil)

	job, err := f.svc.Convert(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "clip.mp4", job.Source)
	assert.Equal(t, 160, job.Width)
	assert.Equal(t, 90, job.Height)
	assert.Equal(t, 10, job.Frames)
	assert.Equal(t, 10, job.CaptureDone)
	assert.Equal(t, 1.0, job.EncodeProgress)
	assert.Equal(t, encode.DefaultQuality, job.Params.Quality)
	assert.Positive(t, job.ArtifactSize)
	assert.Empty(t, job.ArtifactURL)
	assert.Empty(t, f.svc.Active(), "slot must be released")
	assert.Equal(t, 10, f.media.seekCount())

	rc, _, err := f.svc.Artifact(context.Background(), job.ID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, data, job.ArtifactSize)

	decoded, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, decoded.Image, 10)
	assert.Equal(t, 0, decoded.LoopCount)
	assert.Equal(t, 10, decoded.Delay[0])
	assert.Equal(t, image.Rect(0, 0, 160, 90), decoded.Image[0].Bounds())
}

func TestConvert_EventsAreMonotonic(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Convert(context.Background(), validInput())
	require.NoError(t, err)

	events := f.recorded()
	require.NotEmpty(t, events)
	assert.Equal(t, StatusCapturing, events[0].Status)
	assert.Equal(t, StatusCompleted, events[len(events)-1].Status)

	lastCapture, lastEncode := 0, 0.0
	sawEncoding := false
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.CaptureDone, lastCapture)
		assert.GreaterOrEqual(t, ev.EncodeProgress, lastEncode)
		lastCapture, lastEncode = ev.CaptureDone, ev.EncodeProgress
		if ev.Status == StatusEncoding {
			sawEncoding = true
		}
	}
	assert.True(t, sawEncoding)
	assert.Equal(t, 10, lastCapture)
	assert.Equal(t, 1.0, lastEncode)
}

func TestConvert_UploadIsStoredAndRemoved(t *testing.T) {
	f := newFixture(t, nil)

	input := validInput()
	input.VideoPath = ""
	input.VideoData = []byte("fake video bytes")
	input.VideoName = "holiday.mov"

	job, err := f.svc.Convert(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "holiday.mov", job.Source)
	require.Len(t, f.opener.paths, 1)
	assert.True(t, f.opener.exists[0], "upload must be on disk when opened")
	assert.True(t, job.TempInput)
	_, statErr := os.Stat(f.opener.paths[0])
	assert.True(t, os.IsNotExist(statErr), "temp upload must be removed")
}

func TestConvert_URLSource(t *testing.T) {
	fetcher := &fakeFetcher{file: &fetch.File{Name: "remote.mp4", ContentType: "video/mp4", Data: []byte("remote")}}
	f := newFixture(t, nil, WithFetcher(fetcher))

	input := validInput()
	input.VideoPath = ""
	input.SourceURL = "https://cdn.example.com/remote.mp4"

	job, err := f.svc.Convert(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "https://cdn.example.com/remote.mp4", job.Source)
	require.Len(t, f.opener.exists, 1)
	assert.True(t, f.opener.exists[0])
}

func TestConvert_FetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: &fetch.StatusError{Status: 502, ViaProxy: true}}
	f := newFixture(t, nil, WithFetcher(fetcher))

	input := validInput()
	input.VideoPath = ""
	input.SourceURL = "https://cdn.example.com/remote.mp4"

	job, err := f.svc.Convert(context.Background(), input)

	var statusErr *fetch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, KindFetch, job.ErrorKind)
	assert.Contains(t, job.Error, "502")
}

func TestCreateJob_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		modify func(*ConvertInput)
		want   error
	}{
		{"no source", func(in *ConvertInput) { in.VideoPath = "" }, ErrNoSource},
		{"two sources", func(in *ConvertInput) { in.SourceURL = "https://x.test/a.mp4" }, ErrNoSource},
		{"url without fetcher", func(in *ConvertInput) {
			in.VideoPath = ""
			in.SourceURL = "https://x.test/a.mp4"
		}, ErrNoFetcher},
		{"bad color", func(in *ConvertInput) { in.Transparent = "not-a-color" }, ErrInvalidColor},
		{"negative start", func(in *ConvertInput) { in.Start = -1 }, nil},
		{"quality too high", func(in *ConvertInput) { in.Quality = 101 }, nil},
		{"repeat too low", func(in *ConvertInput) { in.Repeat = -2 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.modify(&input)

			_, err := f.svc.CreateJob(context.Background(), input)
			require.ErrorIs(t, err, ErrInvalidInput)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, KindConfig, Classify(err))
			assert.Empty(t, f.svc.Active())
		})
	}
}

func TestCreateJob_RejectsCaptureConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ConvertInput)
		want   error
	}{
		{"end omitted", func(in *ConvertInput) { in.End = 0 }, nil},
		{"end equals start", func(in *ConvertInput) { in.Start, in.End = 2, 2 }, nil},
		{"end before start", func(in *ConvertInput) { in.Start, in.End = 3, 1 }, nil},
		{"too short for one frame", func(in *ConvertInput) { in.End, in.FPS = 0.1, 5 }, capture.ErrNoFrames},
		{"unsupported width", func(in *ConvertInput) { in.Width = 333 }, capture.ErrUnsupportedWidth},
		{"unsupported fps", func(in *ConvertInput) { in.FPS = 12 }, capture.ErrUnsupportedFPS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{file: &fetch.File{Name: "remote.mp4", Data: []byte("remote")}}
			f := newFixture(t, nil, WithFetcher(fetcher))

			input := validInput()
			input.VideoPath = ""
			input.SourceURL = "https://cdn.example.com/remote.mp4"
			tt.modify(&input)

			job, err := f.svc.CreateJob(context.Background(), input)

			require.ErrorIs(t, err, ErrInvalidInput)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Nil(t, job)
			assert.Equal(t, KindConfig, Classify(err))
			assert.Zero(t, fetcher.calls.Load(), "no download for a rejected job")
			assert.Empty(t, f.opener.paths)
			assert.Empty(t, f.svc.Active())

			jobs, listErr := f.repo.List(context.Background())
			require.NoError(t, listErr)
			assert.Empty(t, jobs)
		})
	}
}

func TestConvert_ConfigErrorBeforeSeek(t *testing.T) {
	f := newFixture(t, nil)

	// The fixture clip is 4s long, so the range only fails once clamped.
	input := validInput()
	input.Start, input.End = 6, 8

	job, err := f.svc.Convert(context.Background(), input)

	var cfgErr *capture.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, capture.ErrInvalidRange)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, KindConfig, job.ErrorKind)
	assert.Zero(t, f.media.seekCount())
}

func TestConvert_CaptureFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.media.failAt = 0.5
	f.media.failErr = errors.New("corrupt packet")

	job, err := f.svc.Convert(context.Background(), validInput())

	var capErr *capture.CaptureError
	require.ErrorAs(t, err, &capErr)
	assert.InDelta(t, 0.5, capErr.Timestamp, 1e-9)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, KindCapture, job.ErrorKind)
	assert.Contains(t, job.Error, "0.50s")
	assert.Empty(t, job.ArtifactPath)
	assert.Empty(t, f.svc.Active())
}

func TestConvert_OpenFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.err = fmt.Errorf("%w: exit status 1", media.ErrFFprobeExecution)

	job, err := f.svc.Convert(context.Background(), validInput())

	assert.ErrorIs(t, err, media.ErrFFprobeExecution)
	assert.Equal(t, KindEnvironment, job.ErrorKind)
}

func TestCreateJob_InFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, first.ID, f.svc.Active())

	_, err = f.svc.CreateJob(ctx, validInput())
	assert.ErrorIs(t, err, ErrJobInFlight)

	require.NoError(t, f.svc.ProcessExistingJob(ctx, first.ID))

	second, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestProcessExistingJob_NotActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job := New()
	require.NoError(t, f.repo.Save(ctx, job))

	err := f.svc.ProcessExistingJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotActive)

	_, err = f.svc.CreateJob(ctx, validInput())
	assert.NoError(t, err, "a rejected job must not take the slot")
}

func TestProcessExistingJob_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.ProcessExistingJob(context.Background(), "job-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelJob_Queued(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelJob(ctx, job.ID))

	saved, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, saved.Status)
	assert.Empty(t, f.svc.Active())
	assert.ErrorIs(t, f.svc.ProcessExistingJob(ctx, job.ID), ErrInvalidTransition)
}

func TestCancelJob_Running(t *testing.T) {
	f := newFixture(t, nil, WithCaptureOptions(capture.WithSeekTimeout(time.Minute)))
	f.media.hang = true
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.svc.ProcessExistingJob(ctx, job.ID) }()

	require.Eventually(t, func() bool {
		j, err := f.svc.GetJob(ctx, job.ID)
		return err == nil && j.Status == StatusCapturing && f.media.seekCount() > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.CancelJob(ctx, job.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop after cancel")
	}

	saved, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, saved.Status)
	assert.Empty(t, saved.Error)
	assert.Empty(t, f.svc.Active())
}

func TestConvert_PublishToS3(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := &publishingStorage{LocalStorage: local}

	f := newFixture(t, store)
	store.On("Publish", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > len(ArtifactKeyPrefix) && key[:len(ArtifactKeyPrefix)] == ArtifactKeyPrefix
	}), encode.ContentType, mock.AnythingOfType("[]uint8")).
		Return("https://bucket.s3.eu-west-1.amazonaws.com/gifs/out.gif", nil).Once()

	input := validInput()
	input.PushToS3 = true

	job, err := f.svc.Convert(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/gifs/out.gif", job.ArtifactURL)
	assert.NotEmpty(t, job.ArtifactPath)
	store.AssertExpectations(t)
}

func TestConvert_PublishFailure(t *testing.T) {
	f := newFixture(t, nil)

	input := validInput()
	input.PushToS3 = true

	job, err := f.svc.Convert(context.Background(), input)

	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, KindStorage, job.ErrorKind)
}

func TestConvert_Transparent(t *testing.T) {
	f := newFixture(t, nil)

	input := validInput()
	input.Transparent = "#000000"
	input.Repeat = -1

	job, err := f.svc.Convert(context.Background(), input)
	require.NoError(t, err)

	rc, _, err := f.svc.Artifact(context.Background(), job.ID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	decoded, err := gif.DecodeAll(rc)
	require.NoError(t, err)
	assert.Equal(t, -1, decoded.LoopCount)
	assert.Equal(t, byte(gif.DisposalBackground), decoded.Disposal[0])
}

func TestArtifact_NotReady(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	_, _, err = f.svc.Artifact(ctx, job.ID)
	assert.ErrorIs(t, err, ErrArtifactNotReady)

	_, _, err = f.svc.Artifact(ctx, "job-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDeleteJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.svc.Convert(ctx, validInput())
	require.NoError(t, err)
	path := job.ArtifactPath

	require.NoError(t, f.svc.DeleteJob(ctx, job.ID))

	_, err = f.svc.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteJob_Running(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteJob(ctx, job.ID), ErrInvalidTransition)
}

func TestPrune(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	done, err := f.svc.Convert(ctx, validInput())
	require.NoError(t, err)
	queued, err := f.svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	n, err := f.svc.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh jobs are kept")

	n, err = f.svc.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.GetJob(ctx, done.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, statErr := os.Stat(done.ArtifactPath)
	assert.True(t, os.IsNotExist(statErr), "artifact should be removed")

	_, err = f.svc.GetJob(ctx, queued.ID)
	assert.NoError(t, err, "queued job must survive")
}

func TestPruneEvery_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	job, err := f.svc.Convert(ctx, validInput())
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		f.svc.PruneEvery(ctx, 5*time.Millisecond, 0)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		_, err := f.svc.GetJob(context.Background(), job.ID)
		return errors.Is(err, ErrJobNotFound)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("PruneEvery did not return after cancel")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"config", &capture.ConfigError{Err: capture.ErrNoFrames}, KindConfig},
		{"no video stream", fmt.Errorf("open: %w", media.ErrNoVideoStream), KindConfig},
		{"capture", &capture.CaptureError{Timestamp: 1, Err: capture.ErrSeekTimeout}, KindCapture},
		{"capture wrapping ffmpeg", &capture.CaptureError{Timestamp: 1, Err: &media.FFmpegError{Err: errors.New("exit 1")}}, KindCapture},
		{"encode", fmt.Errorf("hand off: %w", &encode.EncodeError{Index: 3, Err: errors.New("boom")}), KindEncode},
		{"init", &encode.InitError{Err: errors.New("no threads")}, KindEnvironment},
		{"ffmpeg", &media.FFmpegError{Err: errors.New("not found")}, KindEnvironment},
		{"fetch status", &fetch.StatusError{Status: 404}, KindFetch},
		{"fetch network", fmt.Errorf("fetch video: %w", fetch.ErrNetwork), KindFetch},
		{"storage", fmt.Errorf("%w: disk full", ErrStorage), KindStorage},
		{"other", errors.New("surprise"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want *color.RGBA
	}{
		{"", nil},
		{"#00ff00", &color.RGBA{G: 255, A: 255}},
		{"red", &color.RGBA{R: 255, A: 255}},
		{"rgb(0, 0, 255)", &color.RGBA{B: 255, A: 255}},
		{"#fff", &color.RGBA{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseColor("nope")
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestNewConvertService_Defaults(t *testing.T) {
	svc := NewConvertService(NewMemoryRepository(), nil, nil, nil, WithDefaultQuality(0), WithDefaultQuality(20))

	assert.NotNil(t, svc.logger)
	assert.Equal(t, 20, svc.defaultQuality)
	assert.Empty(t, svc.Active())
}
