// Package fetch downloads remote videos and images, directly or through a
// CORS-style relay proxy, and names the result after the URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Static errors for fetch operations.
var (
	// ErrInvalidURL is returned when the URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("fetch: invalid URL format")
	// ErrNetwork is returned when the server could not be reached.
	ErrNetwork = errors.New("fetch: network error, check the URL and your connection")
	// ErrOpaqueResponse is returned when a response carries no readable body.
	ErrOpaqueResponse = errors.New("fetch: response body is not readable")
	// ErrUnexpectedContentType is returned when the body is not of the requested kind.
	ErrUnexpectedContentType = errors.New("fetch: unexpected content type")
	// ErrProxyNotConfigured is returned when a fallback needs a proxy and none is set.
	ErrProxyNotConfigured = errors.New("fetch: no proxy configured")
	// ErrTooLarge is returned when the body exceeds the size limit.
	ErrTooLarge = errors.New("fetch: response exceeds size limit")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Status   int
	ViaProxy bool
}

func (e *StatusError) Error() string {
	if e.ViaProxy {
		return fmt.Sprintf("fetch: proxy returned status %d", e.Status)
	}
	return fmt.Sprintf("fetch: server returned status %d", e.Status)
}

// ProxyStatusError is the StatusError of a proxied request.
type ProxyStatusError = StatusError

// File is a downloaded resource.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Defaults for a Fetcher.
const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = 512 << 20
)

var imageExt = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|bmp|svg)$`)

// kind describes the resource family a fetch expects.
type kind struct {
	name       string
	prefix     string
	defaultExt string
	// strict rejects mismatched content types unless the URL looks right.
	strict bool
}

var (
	videoKind = kind{name: "video", prefix: "video/", defaultExt: "mp4"}
	imageKind = kind{name: "image", prefix: "image/", defaultExt: "png", strict: true}
)

// Fetcher downloads resources over HTTP.
type Fetcher struct {
	httpClient *http.Client
	proxyURL   string
	maxBytes   int64
	logger     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithProxy sets the relay prefix. The escaped target URL is appended to
// it, so it usually ends in "?url=".
func WithProxy(prefix string) Option {
	return func(f *Fetcher) {
		f.proxyURL = prefix
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxBytes:   DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// FetchVideo downloads a video. A non-video content type is logged and
// accepted.
func (f *Fetcher) FetchVideo(ctx context.Context, rawURL string) (*File, error) {
	return f.fetch(ctx, rawURL, videoKind)
}

// FetchImage downloads an image. A non-image content type is rejected
// unless the URL path ends in an image extension.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) (*File, error) {
	return f.fetch(ctx, rawURL, imageKind)
}

// fetch tries the URL directly and falls back to the proxy when the
// direct attempt fails or returns the wrong kind of content.
func (f *Fetcher) fetch(ctx context.Context, rawURL string, k kind) (*File, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	direct, directErr := f.get(ctx, u.String(), false)
	if directErr == nil && direct.matches(k) {
		return f.finish(u, direct, k)
	}
	if f.proxyURL == "" {
		if directErr != nil {
			return nil, directErr
		}
		return f.accept(u, direct, k)
	}

	f.logger.Warn("direct fetch failed, retrying through proxy",
		slog.String("kind", k.name),
		slog.String("url", u.String()),
		slog.Any("error", directErr),
	)

	proxied, err := f.get(ctx, f.proxyURL+url.QueryEscape(u.String()), true)
	if err != nil {
		return nil, err
	}
	return f.accept(u, proxied, k)
}

// accept applies the content type policy to a response of the wrong kind.
func (f *Fetcher) accept(u *url.URL, r *response, k kind) (*File, error) {
	if r.matches(k) {
		return f.finish(u, r, k)
	}
	if k.strict && !imageExt.MatchString(u.Path) {
		return nil, fmt.Errorf("%w: got %s, want %s*", ErrUnexpectedContentType, r.contentType, k.prefix)
	}
	f.logger.Warn("unexpected content type, continuing",
		slog.String("kind", k.name),
		slog.String("content_type", r.contentType),
		slog.String("url", u.String()),
	)
	if k.strict {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if ext == "jpg" {
			ext = "jpeg"
		}
		r.contentType = k.prefix + ext
	}
	return f.finish(u, r, k)
}

func (f *Fetcher) finish(u *url.URL, r *response, k kind) (*File, error) {
	file := &File{
		Name:        FileName(u, r.contentType, k.defaultExt),
		ContentType: r.contentType,
		Data:        r.body,
	}
	f.logger.Info("fetched remote file",
		slog.String("kind", k.name),
		slog.String("name", file.Name),
		slog.String("content_type", file.ContentType),
		slog.Int("bytes", len(file.Data)),
		slog.Bool("via_proxy", r.viaProxy),
	)
	return file, nil
}

type response struct {
	body        []byte
	contentType string
	viaProxy    bool
}

func (r *response) matches(k kind) bool {
	return strings.HasPrefix(r.contentType, k.prefix)
}

// get performs a single GET and sniffs the content type when the header
// is missing or generic.
func (f *Fetcher) get(ctx context.Context, target string, viaProxy bool) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch: context cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, ViaProxy: viaProxy}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	if len(body) == 0 {
		return nil, ErrOpaqueResponse
	}

	return &response{
		body:        body,
		contentType: contentType(resp.Header.Get("Content-Type"), body),
		viaProxy:    viaProxy,
	}, nil
}

func contentType(header string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(mimetype.Detect(body).String())
	return mt
}

// ValidateURL parses raw and requires an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// FileName derives a file name from the last URL path segment. When the
// segment is empty or has no extension, one is taken from the content type
// subtype, or fallbackExt.
func FileName(u *url.URL, contentType, fallbackExt string) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		base = "download"
	}
	if path.Ext(base) != "" {
		return base
	}

	ext := fallbackExt
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		ext = sub
	}
	return base + "." + ext
}
