package binfmt

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"cityforge.dev/internal/asset"
)

func TestIntWidthBoundaries(t *testing.T) {
	cases := []struct {
		v    int64
		want int
	}{
		{0, 1},
		{127, 1},
		{-127, 1},
		{128, 2},
		{-128, 2},
		{32767, 2},
		{-32767, 2},
		{32768, 4},
		{-32768, 4},
		{2147483647, 4},
		{-2147483647, 4},
		{2147483648, 8},
		{-2147483648, 8},
		{math.MaxInt64, 8},
		{math.MinInt64, 8},
	}
	for _, c := range cases {
		if got := IntWidth(c.v); got != c.want {
			t.Fatalf("IntWidth(%d)=%d, want %d", c.v, got, c.want)
		}
		size, b, err := EncodeValue(Int(c.v), binary.BigEndian)
		if err != nil {
			t.Fatalf("EncodeValue(%d): %v", c.v, err)
		}
		if size != c.want || len(b) != c.want {
			t.Fatalf("EncodeValue(%d) size=%d len=%d, want %d", c.v, size, len(b), c.want)
		}
		back, err := DecodeValue(KindInt, b, binary.BigEndian)
		if err != nil {
			t.Fatalf("DecodeValue(%d): %v", c.v, err)
		}
		if back != Int(c.v) {
			t.Fatalf("DecodeValue=%v, want %d", back, c.v)
		}
	}
}

func TestEncodeValueBytes(t *testing.T) {
	_, b, _ := EncodeValue(Int(-2), binary.BigEndian)
	if !bytes.Equal(b, []byte{0xfe}) {
		t.Fatalf("int8 bytes=%x", b)
	}
	_, b, _ = EncodeValue(Int(300), binary.BigEndian)
	if !bytes.Equal(b, []byte{0x01, 0x2c}) {
		t.Fatalf("int16 bytes=%x", b)
	}
	_, b, _ = EncodeValue(Float(1), binary.BigEndian)
	if !bytes.Equal(b, []byte{0x3f, 0x80, 0, 0}) {
		t.Fatalf("float big-endian bytes=%x", b)
	}
	_, b, _ = EncodeValue(Float(1), binary.LittleEndian)
	if !bytes.Equal(b, []byte{0, 0, 0x80, 0x3f}) {
		t.Fatalf("float little-endian bytes=%x", b)
	}
	size, b, _ := EncodeValue(Text("jarrett-pylon"), binary.BigEndian)
	if size != 13 || string(b) != "jarrett-pylon" {
		t.Fatalf("text size=%d bytes=%q", size, b)
	}
}

func TestEncodeValueUnsupported(t *testing.T) {
	if _, _, err := EncodeValue(nil, binary.BigEndian); !errors.Is(err, asset.ErrUnsupportedValueKind) {
		t.Fatalf("nil value err=%v", err)
	}
	long := Text(strings.Repeat("x", MaxUint16+1))
	if _, _, err := EncodeValue(long, binary.BigEndian); !errors.Is(err, asset.ErrFieldTooLong) {
		t.Fatalf("long text err=%v", err)
	}
}

func TestValueFromJSON(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`[5, 5.0, 1e3, "x", true, null, 99999999999999999999, 1e39, -1e39]`))
	dec.UseNumber()
	var vals []any
	if err := dec.Decode(&vals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []Value{Int(5), Float(5), Float(1000), Text("x")}
	if got, err := ValueFromJSON(json.Number("3.4028234e38")); err != nil || got != Float(math.MaxFloat32) {
		t.Fatalf("ValueFromJSON(max float32)=%#v, %v", got, err)
	}
	if _, err := ValueFromJSON(float64(1e39)); !errors.Is(err, asset.ErrUnsupportedValueKind) {
		t.Fatalf("ValueFromJSON(float64 1e39) err=%v, want unsupported", err)
	}
	for i, w := range want {
		got, err := ValueFromJSON(vals[i])
		if err != nil {
			t.Fatalf("ValueFromJSON(%v): %v", vals[i], err)
		}
		if got != w {
			t.Fatalf("ValueFromJSON(%v)=%#v, want %#v", vals[i], got, w)
		}
	}
	for _, v := range vals[4:] {
		if _, err := ValueFromJSON(v); !errors.Is(err, asset.ErrUnsupportedValueKind) {
			t.Fatalf("ValueFromJSON(%v) err=%v, want unsupported", v, err)
		}
	}
}

func TestSectionSizeConventions(t *testing.T) {
	inc := NewSection(ModelGeometry)
	inc.PutFloat32(1, binary.BigEndian)
	inc.PutUint8(7)
	if inc.Size() != 2+5 {
		t.Fatalf("includes-prefix size=%d, want 7", inc.Size())
	}
	exc := NewSection(ThingModels)
	exc.PutUint16(1)
	exc.PutString16("ab")
	if exc.Size() != 2+2+2 {
		t.Fatalf("excludes-prefix size=%d, want 6", exc.Size())
	}

	b, err := Concat(inc, exc)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if len(b) != inc.Len()+exc.Len() {
		t.Fatalf("len=%d, want %d", len(b), inc.Len()+exc.Len())
	}
	if got := binary.BigEndian.Uint16(b); got != 7 {
		t.Fatalf("geometry prefix=%d", got)
	}
	if got := binary.BigEndian.Uint32(b[7:]); got != 6 {
		t.Fatalf("models prefix=%d", got)
	}

	r := NewReader(b)
	g := r.Section(ModelGeometry)
	if v := g.Float32(binary.BigEndian); v != 1 {
		t.Fatalf("float=%v", v)
	}
	if v := g.Uint8(); v != 7 {
		t.Fatalf("byte=%v", v)
	}
	if err := g.Done(); err != nil {
		t.Fatalf("geometry Done: %v", err)
	}
	m := r.Section(ThingModels)
	if m.Uint16() != 1 || m.String16() != "ab" {
		t.Fatalf("models payload mismatch")
	}
	if err := m.Done(); err != nil {
		t.Fatalf("models Done: %v", err)
	}
	if err := r.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestSectionTooLarge(t *testing.T) {
	s := NewSection(ModelHeader)
	s.Add(make([]byte, MaxUint16))
	if _, err := s.AppendTo(nil); !errors.Is(err, asset.ErrSectionTooLarge) {
		t.Fatalf("err=%v, want section too large", err)
	}
}

func TestReaderDetectsSizeMismatch(t *testing.T) {
	s := NewSection(SaveTerrain)
	s.PutUint8(0)
	s.PutString16("h.png")
	b, _ := s.AppendTo(nil)

	r := NewReader(b)
	sub := r.Section(SaveTerrain)
	sub.Uint8()
	if err := sub.Done(); !errors.Is(err, asset.ErrSectionSizeMismatch) {
		t.Fatalf("Done err=%v, want mismatch", err)
	}

	r = NewReader(b[:len(b)-1])
	sub = r.Section(SaveTerrain)
	if !errors.Is(sub.Err(), asset.ErrTruncated) {
		t.Fatalf("truncated err=%v", sub.Err())
	}
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("")
	if err != nil || l.Name != LegacyLayout.Name {
		t.Fatalf("default layout=%v err=%v", l.Name, err)
	}
	l, err = ParseLayout("big-endian")
	if err != nil || l.Placement != binary.BigEndian {
		t.Fatalf("big-endian layout=%v err=%v", l.Name, err)
	}
	if _, err := ParseLayout("native"); err == nil {
		t.Fatalf("expected error for unknown layout")
	}
}
