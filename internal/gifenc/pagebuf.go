package gifenc

import "io"

// PageSize is the size of every page in a PageBuffer.
const PageSize = 4096

// PageBuffer is an append-only byte sink that grows in fixed-size pages so
// large outputs never need a contiguous reallocation.
type PageBuffer struct {
	pages  [][]byte
	cursor int
}

// NewPageBuffer returns an empty buffer with one page allocated.
func NewPageBuffer() *PageBuffer {
	b := &PageBuffer{}
	b.grow()
	return b
}

func (b *PageBuffer) grow() {
	b.pages = append(b.pages, make([]byte, PageSize))
	b.cursor = 0
}

// WriteByte appends one byte. It never fails.
func (b *PageBuffer) WriteByte(c byte) error {
	if b.cursor >= PageSize {
		b.grow()
	}
	b.pages[len(b.pages)-1][b.cursor] = c
	b.cursor++
	return nil
}

// Write appends p, spilling across pages as needed. It never fails.
func (b *PageBuffer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if b.cursor >= PageSize {
			b.grow()
		}
		c := copy(b.pages[len(b.pages)-1][b.cursor:], p)
		b.cursor += c
		p = p[c:]
	}
	return n, nil
}

// WriteString appends the bytes of s.
func (b *PageBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// Len is the number of bytes written.
func (b *PageBuffer) Len() int {
	return (len(b.pages)-1)*PageSize + b.cursor
}

// Pages returns the written pages. Every page is full except the last,
// which is trimmed to its used length. The slices alias the buffer.
func (b *PageBuffer) Pages() [][]byte {
	out := make([][]byte, len(b.pages))
	copy(out, b.pages)
	out[len(out)-1] = out[len(out)-1][:b.cursor]
	return out
}

// Bytes copies the written bytes into one contiguous slice.
func (b *PageBuffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, p := range b.Pages() {
		out = append(out, p...)
	}
	return out
}

// WriteTo writes the buffered bytes to w.
func (b *PageBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range b.Pages() {
		n, err := w.Write(p)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var (
	_ io.Writer     = (*PageBuffer)(nil)
	_ io.ByteWriter = (*PageBuffer)(nil)
	_ io.WriterTo   = (*PageBuffer)(nil)
)
