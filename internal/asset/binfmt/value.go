package binfmt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"cityforge.dev/internal/asset"
)

type ValueKind uint8

const (
	KindInt ValueKind = iota + 1
	KindFloat
	KindText
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// Value is a config value. The set of implementations is closed: Int, Float
// and Text.
type Value interface {
	Kind() ValueKind
	isValue()
}

type (
	Int   int64
	Float float32
	Text  string
)

func (Int) Kind() ValueKind   { return KindInt }
func (Float) Kind() ValueKind { return KindFloat }
func (Text) Kind() ValueKind  { return KindText }

func (Int) isValue()   {}
func (Float) isValue() {}
func (Text) isValue()  {}

// IntWidth returns the smallest width (1, 2, 4 or 8 bytes) whose symmetric
// signed range holds v. The most negative value of each width is excluded, so
// -128 takes 2 bytes.
func IntWidth(v int64) int {
	switch {
	case v >= -127 && v <= 127:
		return 1
	case v >= -32767 && v <= 32767:
		return 2
	case v >= -2147483647 && v <= 2147483647:
		return 4
	}
	return 8
}

// EncodeValue returns the byte size and binary form of v. Integers are always
// big-endian; floats use floatOrder.
func EncodeValue(v Value, floatOrder binary.ByteOrder) (int, []byte, error) {
	switch v := v.(type) {
	case Int:
		w := IntWidth(int64(v))
		b := make([]byte, w)
		switch w {
		case 1:
			b[0] = byte(int8(v))
		case 2:
			binary.BigEndian.PutUint16(b, uint16(int16(v)))
		case 4:
			binary.BigEndian.PutUint32(b, uint32(int32(v)))
		default:
			binary.BigEndian.PutUint64(b, uint64(v))
		}
		return w, b, nil
	case Float:
		b := make([]byte, 4)
		floatOrder.PutUint32(b, math.Float32bits(float32(v)))
		return 4, b, nil
	case Text:
		if len(v) > MaxUint16 {
			return 0, nil, asset.Invalid(asset.ErrFieldTooLong, "value", fmt.Sprintf("%d bytes of text, max %d", len(v), MaxUint16))
		}
		return len(v), []byte(v), nil
	}
	return 0, nil, asset.Invalid(asset.ErrUnsupportedValueKind, "value", fmt.Sprintf("%T", v))
}

// DecodeValue interprets raw as a value of the given kind. The binary form
// does not record the kind, so the caller has to know it.
func DecodeValue(kind ValueKind, raw []byte, floatOrder binary.ByteOrder) (Value, error) {
	switch kind {
	case KindInt:
		switch len(raw) {
		case 1:
			return Int(int8(raw[0])), nil
		case 2:
			return Int(int16(binary.BigEndian.Uint16(raw))), nil
		case 4:
			return Int(int32(binary.BigEndian.Uint32(raw))), nil
		case 8:
			return Int(int64(binary.BigEndian.Uint64(raw))), nil
		}
		return nil, fmt.Errorf("int value of %d bytes", len(raw))
	case KindFloat:
		if len(raw) != 4 {
			return nil, fmt.Errorf("float value of %d bytes", len(raw))
		}
		return Float(math.Float32frombits(floatOrder.Uint32(raw))), nil
	case KindText:
		return Text(raw), nil
	}
	return nil, fmt.Errorf("%w: %s", asset.ErrUnsupportedValueKind, kind)
}

// ValueFromJSON converts a value decoded with json.Decoder.UseNumber into a
// Value. Number literals with a fraction or exponent become floats, the rest
// integers. Booleans, null, objects and arrays are rejected.
func ValueFromJSON(v any) (Value, error) {
	switch v := v.(type) {
	case json.Number:
		s := v.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: number %s", asset.ErrUnsupportedValueKind, s)
			}
			return floatValue(f)
		}
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: integer %s out of range", asset.ErrUnsupportedValueKind, s)
		}
		return Int(i), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return Int(int64(v)), nil
		}
		return floatValue(v)
	case string:
		return Text(v), nil
	case nil:
		return nil, fmt.Errorf("%w: null", asset.ErrUnsupportedValueKind)
	}
	return nil, fmt.Errorf("%w: %T", asset.ErrUnsupportedValueKind, v)
}

// floatValue narrows f to a float32, rejecting magnitudes that would
// become infinite.
func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.Abs(f) > math.MaxFloat32 {
		return nil, fmt.Errorf("%w: float %g out of float32 range", asset.ErrUnsupportedValueKind, f)
	}
	return Float(float32(f)), nil
}

// ValueToJSON is the inverse of ValueFromJSON, for printing decoded assets.
func ValueToJSON(v Value) any {
	switch v := v.(type) {
	case Int:
		return int64(v)
	case Float:
		return float32(v)
	case Text:
		return string(v)
	}
	return nil
}
