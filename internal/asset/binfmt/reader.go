package binfmt

import (
	"encoding/binary"
	"fmt"
	"math"

	"cityforge.dev/internal/asset"
)

// Reader walks an in-memory asset. Like bufio.Scanner it records the first
// error and turns every later read into a no-op returning zero values, so
// decoders can read a run of fields and check Err once.
type Reader struct {
	buf  []byte
	off  int
	base int // absolute offset of buf[0], for error messages
	name string
	err  error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b, name: "file"}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) Offset() int { return r.base + r.off }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left", asset.ErrTruncated, r.name, n, r.Offset(), r.Remaining()))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Float32(order binary.ByteOrder) float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(order.Uint32(b))
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *Reader) String16() string {
	n := r.Uint16()
	return string(r.take(int(n)))
}

// Section reads a size prefix described by spec and returns a reader bounded
// to the section payload. The parent reader moves past the whole section.
func (r *Reader) Section(spec Spec) *Reader {
	sub := &Reader{name: spec.Name}
	if r.err != nil {
		sub.err = r.err
		return sub
	}
	var declared uint64
	if spec.Width == Size16 {
		declared = uint64(r.Uint16())
	} else {
		declared = uint64(r.Uint32())
	}
	if r.err != nil {
		sub.err = r.err
		return sub
	}
	n, err := spec.PayloadSize(declared)
	if err != nil {
		r.fail(err)
		sub.err = err
		return sub
	}
	sub.base = r.Offset()
	sub.buf = r.take(n)
	if r.err != nil {
		sub.err = r.err
	}
	return sub
}

// Done verifies that a section reader consumed exactly its declared payload.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if left := r.Remaining(); left != 0 {
		return fmt.Errorf("%w: %s declares %d payload bytes, %d were read", asset.ErrSectionSizeMismatch, r.name, len(r.buf), r.off)
	}
	return nil
}

// End verifies that nothing follows the last section of a file.
func (r *Reader) End() error {
	if r.err != nil {
		return r.err
	}
	if left := r.Remaining(); left != 0 {
		return fmt.Errorf("%w: %d bytes after the last section", asset.ErrTrailingData, left)
	}
	return nil
}
