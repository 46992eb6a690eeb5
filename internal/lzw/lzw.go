// Package lzw implements the variable-width LZW compressor used for GIF
// image data. Output is LSB-first and framed as GIF data sub-blocks.
package lzw

import (
	"fmt"
	"io"
)

const (
	maxBits  = 12
	maxCodes = 1 << maxBits

	// hashSize is a prime giving an ~80% occupancy for 4096 codes.
	hashSize  = 5003
	hashShift = 4

	// packetSize is the payload size of every full data sub-block.
	packetSize = 254
)

// Writer is the byte sink the compressor writes into.
type Writer interface {
	io.Writer
	io.ByteWriter
}

// Encode compresses pixels, a buffer of palette indices, and writes the
// minimum code size byte, the data sub-blocks and the block terminator to w.
// colorDepth is the bit depth of the palette; depths below 2 are widened
// to 2. Every pixel value must be below 1<<colorDepth.
func Encode(w Writer, pixels []byte, colorDepth int) error {
	codeSize := max(2, colorDepth)
	if codeSize > 8 {
		return fmt.Errorf("lzw: unsupported color depth %d", colorDepth)
	}
	if err := w.WriteByte(byte(codeSize)); err != nil {
		return err
	}

	e := &encoder{w: w}
	e.compress(pixels, codeSize+1)
	if e.err != nil {
		return e.err
	}
	return w.WriteByte(0)
}

type encoder struct {
	w   Writer
	err error

	initBits  int
	nBits     int
	maxCode   int
	clearCode int
	eofCode   int
	freeEnt   int
	clearFlag bool

	htab    [hashSize]int32
	codetab [hashSize]int32

	accum uint32
	nAcc  int

	packet [packetSize]byte
	nPkt   int
}

func maxCodeFor(bits int) int {
	return 1<<bits - 1
}

func (e *encoder) symbol(p byte) int {
	if int(p) >= e.clearCode {
		panic(fmt.Sprintf("lzw: pixel value %d out of range for code size %d", p, e.initBits-1))
	}
	return int(p)
}

func (e *encoder) compress(pixels []byte, initBits int) {
	e.initBits = initBits
	e.nBits = initBits
	e.maxCode = maxCodeFor(initBits)
	e.clearCode = 1 << (initBits - 1)
	e.eofCode = e.clearCode + 1
	e.freeEnt = e.clearCode + 2
	e.clearFlag = false

	e.resetHash()
	e.output(e.clearCode)
	if len(pixels) == 0 {
		e.output(e.eofCode)
		return
	}

	ent := e.symbol(pixels[0])

next:
	for _, p := range pixels[1:] {
		c := e.symbol(p)
		fcode := int32(c<<maxBits + ent)
		i := c<<hashShift ^ ent

		if e.htab[i] == fcode {
			ent = int(e.codetab[i])
			continue
		}
		if e.htab[i] >= 0 {
			// secondary probe
			disp := hashSize - i
			if i == 0 {
				disp = 1
			}
			for {
				i -= disp
				if i < 0 {
					i += hashSize
				}
				if e.htab[i] == fcode {
					ent = int(e.codetab[i])
					continue next
				}
				if e.htab[i] < 0 {
					break
				}
			}
		}

		e.output(ent)
		ent = c
		if e.freeEnt < maxCodes {
			e.codetab[i] = int32(e.freeEnt)
			e.freeEnt++
			e.htab[i] = fcode
		} else {
			e.clearBlock()
		}
	}

	e.output(ent)
	e.output(e.eofCode)
}

func (e *encoder) resetHash() {
	for i := range e.htab {
		e.htab[i] = -1
	}
}

// clearBlock empties the string table and emits a clear code at the
// current width. The width drops back to initBits after it is written.
func (e *encoder) clearBlock() {
	e.resetHash()
	e.freeEnt = e.clearCode + 2
	e.clearFlag = true
	e.output(e.clearCode)
}

func (e *encoder) output(code int) {
	e.accum &= 1<<uint(e.nAcc) - 1
	e.accum |= uint32(code) << uint(e.nAcc)
	e.nAcc += e.nBits

	for e.nAcc >= 8 {
		e.emit(byte(e.accum))
		e.accum >>= 8
		e.nAcc -= 8
	}

	if e.freeEnt > e.maxCode || e.clearFlag {
		if e.clearFlag {
			e.nBits = e.initBits
			e.maxCode = maxCodeFor(e.nBits)
			e.clearFlag = false
		} else {
			e.nBits++
			if e.nBits == maxBits {
				e.maxCode = maxCodes
			} else {
				e.maxCode = maxCodeFor(e.nBits)
			}
		}
	}

	if code == e.eofCode {
		for e.nAcc > 0 {
			e.emit(byte(e.accum))
			e.accum >>= 8
			e.nAcc -= 8
		}
		e.flush()
	}
}

func (e *encoder) emit(b byte) {
	e.packet[e.nPkt] = b
	e.nPkt++
	if e.nPkt >= packetSize {
		e.flush()
	}
}

func (e *encoder) flush() {
	if e.nPkt == 0 || e.err != nil {
		e.nPkt = 0
		return
	}
	if err := e.w.WriteByte(byte(e.nPkt)); err != nil {
		e.err = err
		return
	}
	if _, err := e.w.Write(e.packet[:e.nPkt]); err != nil {
		e.err = err
	}
	e.nPkt = 0
}
