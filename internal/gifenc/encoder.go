// Package gifenc writes GIF89a containers frame by frame. Each frame is
// quantized to its own 256-color palette and LZW-compressed into a
// page buffer.
package gifenc

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/maauso/gifkit/internal/lzw"
	"github.com/maauso/gifkit/internal/quant"
	"github.com/maauso/gifkit/internal/raster"
)

// Block introducers and labels.
const (
	signature        = "GIF89a"
	extIntroducer    = 0x21
	gceLabel         = 0xF9
	appLabel         = 0xFF
	imageSeparator   = 0x2C
	trailer          = 0x3B
	netscapeIdent    = "NETSCAPE2.0"
	paletteSizeField = 7 // 2^(7+1) = 256 entries
	colorDepth       = 8
	gcePackedDispose = 2
)

// DefaultQuality is the NeuQuant sampling factor used when none is set.
const DefaultQuality = 10

// Static errors returned by the encoder.
var (
	// ErrFinalized is returned when a frame is added after Finish.
	ErrFinalized = errors.New("gifenc: encoder already finalized")
	// ErrNotFinalized is returned when output is read before Finish.
	ErrNotFinalized = errors.New("gifenc: encoder not finalized")
	// ErrFrameMismatch is returned when a frame does not match the logical screen.
	ErrFrameMismatch = errors.New("gifenc: frame size does not match encoder")
	// ErrNoFrames is returned when a stream is finished before any frame.
	ErrNoFrames = errors.New("gifenc: stream has no frames")
)

// State is the lifecycle stage of an Encoder.
type State int

const (
	// AwaitingFirstFrame is the state before any frame is written.
	AwaitingFirstFrame State = iota
	// StreamingFrames is the state once at least one frame is written.
	StreamingFrames
	// Finalized is the state after Finish.
	Finalized
)

func (s State) String() string {
	switch s {
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case StreamingFrames:
		return "streaming_frames"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Encoder writes one GIF stream, or one slice of a stream produced by a
// pool of encoders.
type Encoder struct {
	width, height int

	repeat      int
	delay       int
	dispose     int
	sample      int
	transparent *color.RGBA
	continuing  bool
	omitTrailer bool

	out     *PageBuffer
	state   State
	frames  int
	started bool
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithRepeat sets the loop count written to the NETSCAPE2.0 block. 0 loops
// forever; a negative value omits the block.
func WithRepeat(n int) Option {
	return func(e *Encoder) {
		e.repeat = n
	}
}

// WithDelay sets the default frame delay in hundredths of a second.
func WithDelay(hundredths int) Option {
	return func(e *Encoder) {
		e.delay = hundredths
	}
}

// WithQuality sets the quantizer sampling factor. Lower is better quality.
func WithQuality(q int) Option {
	return func(e *Encoder) {
		if q < 1 {
			q = 1
		}
		e.sample = q
	}
}

// WithTransparent marks the palette entry nearest to c as transparent.
func WithTransparent(c color.RGBA) Option {
	return func(e *Encoder) {
		e.transparent = &c
	}
}

// WithDispose sets the GCE disposal method. A negative value picks the
// default: restore to background with transparency, unspecified otherwise.
func WithDispose(method int) Option {
	return func(e *Encoder) {
		e.dispose = method
	}
}

// WithFirstFrame controls whether the first frame added opens the stream.
// With false the encoder produces a later slice of a stream: no signature
// or logical screen, every frame with a local color table.
func WithFirstFrame(first bool) Option {
	return func(e *Encoder) {
		e.continuing = !first
	}
}

// WithTrailer controls whether Finish writes the stream trailer.
func WithTrailer(on bool) Option {
	return func(e *Encoder) {
		e.omitTrailer = !on
	}
}

// NewEncoder creates an encoder for a width×height logical screen.
func NewEncoder(width, height int, opts ...Option) *Encoder {
	e := &Encoder{
		width:   width,
		height:  height,
		repeat:  -1,
		dispose: -1,
		sample:  DefaultQuality,
		out:     NewPageBuffer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State reports the encoder lifecycle stage.
func (e *Encoder) State() State {
	return e.state
}

// Frames is the number of frames written so far.
func (e *Encoder) Frames() int {
	return e.frames
}

// AddFrame quantizes, indexes and writes one frame. The frame delay is
// used when positive, otherwise the encoder default applies.
func (e *Encoder) AddFrame(f raster.Frame) error {
	if e.state == Finalized {
		return ErrFinalized
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Width != e.width || f.Height != e.height {
		return fmt.Errorf("%w: frame %dx%d, encoder %dx%d",
			ErrFrameMismatch, f.Width, f.Height, e.width, e.height)
	}

	a := analyze(f, e.sample, e.transparent)

	delay := e.delay
	if f.Delay > 0 {
		delay = f.Delay
	}

	first := e.frames == 0 && !e.continuing
	if first {
		e.WriteHeader()
		e.writeLSD()
		e.writePalette(a.palette)
		if e.repeat >= 0 {
			e.writeNetscape()
		}
	}
	e.writeGCE(delay, a.transIndex)
	e.writeImageDesc(first)
	if !first {
		e.writePalette(a.palette)
	}
	if err := lzw.Encode(e.out, a.indexed, colorDepth); err != nil {
		return fmt.Errorf("gifenc: compress frame %d: %w", f.Index, err)
	}

	e.frames++
	e.state = StreamingFrames
	return nil
}

// Finish writes the trailer, unless disabled with WithTrailer, and seals the
// encoder. Calling Finish twice returns ErrFinalized. An encoder that opens
// the stream returns ErrNoFrames until it has a frame; it stays usable.
func (e *Encoder) Finish() error {
	if e.state == Finalized {
		return ErrFinalized
	}
	if e.frames == 0 && !e.continuing {
		return ErrNoFrames
	}
	if !e.omitTrailer {
		_ = e.out.WriteByte(trailer)
	}
	e.state = Finalized
	return nil
}

// Bytes returns the encoded stream in one slice.
func (e *Encoder) Bytes() ([]byte, error) {
	if e.state != Finalized {
		return nil, ErrNotFinalized
	}
	return e.out.Bytes(), nil
}

// Pages returns the encoded stream as page slices that alias the buffer.
func (e *Encoder) Pages() ([][]byte, error) {
	if e.state != Finalized {
		return nil, ErrNotFinalized
	}
	return e.out.Pages(), nil
}

// Len is the number of bytes written so far.
func (e *Encoder) Len() int {
	return e.out.Len()
}

type analysis struct {
	palette    []byte
	indexed    []byte
	transIndex int
	used       [quant.PaletteSize]bool
}

func analyze(f raster.Frame, sample int, transparent *color.RGBA) analysis {
	rgb := f.RGB()
	nq := quant.New(rgb, sample)
	nq.BuildColormap()

	a := analysis{palette: nq.Colormap(), indexed: make([]byte, len(rgb)/3)}
	for i, j := 0, 0; j < len(a.indexed); i, j = i+3, j+1 {
		idx := nq.Lookup(rgb[i], rgb[i+1], rgb[i+2])
		a.used[idx] = true
		a.indexed[j] = byte(idx)
	}
	a.transIndex = -1
	if transparent != nil {
		a.transIndex = a.closestUsed(transparent.R, transparent.G, transparent.B)
	}
	return a
}

func (a *analysis) closestUsed(r, g, b byte) int {
	best, bestd := 0, 256*256*256
	for i := 0; i < quant.PaletteSize; i++ {
		if !a.used[i] {
			continue
		}
		dr := int(r) - int(a.palette[i*3])
		dg := int(g) - int(a.palette[i*3+1])
		db := int(b) - int(a.palette[i*3+2])
		if d := dr*dr + dg*dg + db*db; d < bestd {
			best, bestd = i, d
		}
	}
	return best
}

func (e *Encoder) writeShort(v int) {
	_ = e.out.WriteByte(byte(v))
	_ = e.out.WriteByte(byte(v >> 8))
}

// WriteHeader writes the GIF89a signature. It runs at most once and is
// called by the first AddFrame when the caller has not done so.
func (e *Encoder) WriteHeader() {
	if e.started || e.state == Finalized {
		return
	}
	_, _ = e.out.WriteString(signature)
	e.started = true
}

func (e *Encoder) writeLSD() {
	e.writeShort(e.width)
	e.writeShort(e.height)
	// global table present, 8-bit color resolution, table size field
	_ = e.out.WriteByte(0x80 | 0x70 | paletteSizeField)
	_ = e.out.WriteByte(0) // background color index
	_ = e.out.WriteByte(0) // pixel aspect ratio
}

func (e *Encoder) writeNetscape() {
	_ = e.out.WriteByte(extIntroducer)
	_ = e.out.WriteByte(appLabel)
	_ = e.out.WriteByte(byte(len(netscapeIdent)))
	_, _ = e.out.WriteString(netscapeIdent)
	_ = e.out.WriteByte(3)
	_ = e.out.WriteByte(1)
	e.writeShort(e.repeat)
	_ = e.out.WriteByte(0)
}

func (e *Encoder) writeGCE(delay, transIndex int) {
	transFlag, dispose := 0, 0
	if transIndex >= 0 {
		transFlag, dispose = 1, gcePackedDispose
	}
	if e.dispose >= 0 {
		dispose = e.dispose & 7
	}

	_ = e.out.WriteByte(extIntroducer)
	_ = e.out.WriteByte(gceLabel)
	_ = e.out.WriteByte(4)
	_ = e.out.WriteByte(byte(dispose<<2 | transFlag))
	e.writeShort(delay)
	_ = e.out.WriteByte(byte(max(transIndex, 0)))
	_ = e.out.WriteByte(0)
}

func (e *Encoder) writeImageDesc(first bool) {
	_ = e.out.WriteByte(imageSeparator)
	e.writeShort(0)
	e.writeShort(0)
	e.writeShort(e.width)
	e.writeShort(e.height)
	if first {
		_ = e.out.WriteByte(0)
	} else {
		_ = e.out.WriteByte(0x80 | paletteSizeField)
	}
}

func (e *Encoder) writePalette(palette []byte) {
	_, _ = e.out.Write(palette)
	for n := len(palette); n < 3*quant.PaletteSize; n++ {
		_ = e.out.WriteByte(0)
	}
}
