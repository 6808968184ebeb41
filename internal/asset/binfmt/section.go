// Package binfmt is the shared byte layer of the asset formats: the config
// value codec, size-prefixed sections and the matching reader.
//
// A file is a sequence of sections. Each section starts with a big-endian
// size prefix followed by its payload. Whether the declared size counts the
// prefix itself depends on the section and is part of the on-disk format, so
// every section is described by a Spec that names its prefix width and size
// convention. Headers and the model geometry section count their own prefix;
// the u32 table sections do not.
package binfmt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"cityforge.dev/internal/asset"
)

const (
	MaxUint16 = math.MaxUint16
	MaxUint32 = math.MaxUint32
)

type SizeWidth uint8

const (
	Size16 SizeWidth = 2
	Size32 SizeWidth = 4
)

func (w SizeWidth) max() uint64 {
	if w == Size16 {
		return MaxUint16
	}
	return MaxUint32
}

type SizeConvention uint8

const (
	// IncludesPrefix: declared size = prefix + payload.
	IncludesPrefix SizeConvention = iota + 1
	// ExcludesPrefix: declared size = payload (count field and records).
	ExcludesPrefix
)

type Spec struct {
	Name       string
	Width      SizeWidth
	Convention SizeConvention
}

// Section tags for every section of every format.
var (
	ModelHeader   = Spec{Name: "model.header", Width: Size16, Convention: IncludesPrefix}
	ModelGeometry = Spec{Name: "model.geometry", Width: Size16, Convention: IncludesPrefix}

	ThingHeader = Spec{Name: "thing.header", Width: Size16, Convention: IncludesPrefix}
	ThingModels = Spec{Name: "thing.models", Width: Size32, Convention: ExcludesPrefix}
	ThingConfig = Spec{Name: "thing.configs", Width: Size32, Convention: ExcludesPrefix}

	SaveHeader     = Spec{Name: "save.header", Width: Size16, Convention: IncludesPrefix}
	SaveTerrain    = Spec{Name: "save.terrain", Width: Size32, Convention: ExcludesPrefix}
	SaveMetaThings = Spec{Name: "save.metaThings", Width: Size32, Convention: ExcludesPrefix}
	SaveThings     = Spec{Name: "save.things", Width: Size32, Convention: ExcludesPrefix}
)

// DeclaredSize returns the value written into the size prefix for a payload
// of n bytes.
func (s Spec) DeclaredSize(n int) uint64 {
	if s.Convention == IncludesPrefix {
		return uint64(n) + uint64(s.Width)
	}
	return uint64(n)
}

// PayloadSize is the inverse of DeclaredSize.
func (s Spec) PayloadSize(declared uint64) (int, error) {
	if s.Convention == IncludesPrefix {
		if declared < uint64(s.Width) {
			return 0, fmt.Errorf("%w: %s declares %d bytes, smaller than its own prefix", asset.ErrSectionSizeMismatch, s.Name, declared)
		}
		return int(declared - uint64(s.Width)), nil
	}
	return int(declared), nil
}

// Section accumulates the encoded chunks of one section. The Put helpers
// append one chunk each. The first error (an oversized string) sticks and is
// returned by AppendTo.
type Section struct {
	spec   Spec
	chunks [][]byte
	n      int
	err    error
}

func NewSection(spec Spec) *Section {
	return &Section{spec: spec}
}

func (s *Section) Spec() Spec { return s.spec }

// Add appends an already encoded chunk.
func (s *Section) Add(chunk []byte) {
	s.chunks = append(s.chunks, chunk)
	s.n += len(chunk)
}

func (s *Section) PutUint8(v uint8) { s.Add([]byte{v}) }

func (s *Section) PutUint16(v uint16) {
	s.Add(binary.BigEndian.AppendUint16(nil, v))
}

func (s *Section) PutUint32(v uint32) {
	s.Add(binary.BigEndian.AppendUint32(nil, v))
}

func (s *Section) PutFloat32(v float32, order binary.ByteOrder) {
	b := make([]byte, 4)
	order.PutUint32(b, math.Float32bits(v))
	s.Add(b)
}

// PutString16 writes a u16 byte length followed by the raw bytes.
func (s *Section) PutString16(v string) {
	if len(v) > MaxUint16 {
		s.fail(asset.Invalid(asset.ErrFieldTooLong, s.spec.Name, fmt.Sprintf("string of %d bytes, max %d", len(v), MaxUint16)))
		return
	}
	s.PutUint16(uint16(len(v)))
	s.Add([]byte(v))
}

func (s *Section) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// PayloadLen is the number of bytes after the size prefix.
func (s *Section) PayloadLen() int { return s.n }

// Len is the total number of bytes the section occupies on disk.
func (s *Section) Len() int { return s.n + int(s.spec.Width) }

func (s *Section) Size() uint64 { return s.spec.DeclaredSize(s.n) }

func (s *Section) Err() error { return s.err }

// AppendTo appends the size prefix and the payload to dst.
func (s *Section) AppendTo(dst []byte) ([]byte, error) {
	if s.err != nil {
		return dst, s.err
	}
	size := s.Size()
	if size > s.spec.Width.max() {
		return dst, asset.Invalid(asset.ErrSectionTooLarge, s.spec.Name, fmt.Sprintf("%d bytes, max %d", size, s.spec.Width.max()))
	}
	if s.spec.Width == Size16 {
		dst = binary.BigEndian.AppendUint16(dst, uint16(size))
	} else {
		dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	}
	for _, c := range s.chunks {
		dst = append(dst, c...)
	}
	return dst, nil
}

func (s *Section) WriteTo(w io.Writer) (int64, error) {
	b, err := s.AppendTo(make([]byte, 0, s.Len()))
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Concat lays out sections back to back.
func Concat(sections ...*Section) ([]byte, error) {
	total := 0
	for _, s := range sections {
		total += s.Len()
	}
	out := make([]byte, 0, total)
	for _, s := range sections {
		var err error
		if out, err = s.AppendTo(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
