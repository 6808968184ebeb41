// Package thing builds and reads .thing files: an entity definition made of
// placed models and keyed config values.
//
// Layout:
//
//	header  u16 size (incl.), u16 version, str16 author, str16 name, u8 key
//	models  u32 size (excl.), u16 count,
//	        count x (str16 author, str16 model, u8 direction, f32 x, y, z)
//	configs u32 size (excl.), u16 count,
//	        count x (u8 key index, u16 value size, value bytes)
package thing

import (
	"encoding/hex"
	"fmt"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
	"cityforge.dev/internal/asset/keytable"
)

// DefaultKey is the header key byte used when the input does not set one.
const DefaultKey uint8 = 1

// Placement positions one model inside the thing, relative to the thing's
// origin.
type Placement struct {
	AuthorName string  `json:"authorName"`
	ModelName  string  `json:"modelName"`
	Direction  uint8   `json:"direction"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
}

// ModelFullName is the engine's lookup key for the placed model.
func (p Placement) ModelFullName() string { return asset.FullName(p.AuthorName, p.ModelName) }

type ConfigPair struct {
	Key   string
	Value binfmt.Value
}

type Thing struct {
	Author  string
	Name    string
	Key     uint8
	Models  []Placement
	Configs []ConfigPair
}

// HeaderSize is the declared size of a thing header.
func HeaderSize(author, name string) int {
	return 2 + 2 + 2 + len(author) + 2 + len(name) + 1
}

// ModelsSize is the declared size of the models section: the count field
// and every placement record.
func ModelsSize(ps []Placement) int {
	n := 2
	for _, p := range ps {
		n += 2 + len(p.AuthorName) + 2 + len(p.ModelName) + 1 + 3*4
	}
	return n
}

func checkString(field string, i int, v string) error {
	if v == "" {
		return asset.InvalidAt(asset.ErrMissingField, field, i, "")
	}
	if len(v) > binfmt.MaxUint16 {
		return asset.InvalidAt(asset.ErrFieldTooLong, field, i, fmt.Sprintf("%d bytes", len(v)))
	}
	return nil
}

// Encode returns the complete .thing file. Config keys are resolved against
// keys; an unknown key fails the whole encode.
func Encode(t Thing, keys *keytable.Table, layout binfmt.Layout) ([]byte, error) {
	if err := checkString("author", -1, t.Author); err != nil {
		return nil, err
	}
	if err := checkString("name", -1, t.Name); err != nil {
		return nil, err
	}
	if len(t.Models) > binfmt.MaxUint16 {
		return nil, asset.Invalid(asset.ErrSectionTooLarge, "models", fmt.Sprintf("%d placements", len(t.Models)))
	}
	if len(t.Configs) > binfmt.MaxUint16 {
		return nil, asset.Invalid(asset.ErrSectionTooLarge, "configs", fmt.Sprintf("%d pairs", len(t.Configs)))
	}

	h := binfmt.NewSection(binfmt.ThingHeader)
	h.PutUint16(asset.FormatVersion)
	h.PutString16(t.Author)
	h.PutString16(t.Name)
	h.PutUint8(t.Key)

	ms := binfmt.NewSection(binfmt.ThingModels)
	ms.PutUint16(uint16(len(t.Models)))
	for i, p := range t.Models {
		if err := checkString(fmt.Sprintf("models[%d].authorName", i), i, p.AuthorName); err != nil {
			return nil, err
		}
		if err := checkString(fmt.Sprintf("models[%d].modelName", i), i, p.ModelName); err != nil {
			return nil, err
		}
		ms.PutString16(p.AuthorName)
		ms.PutString16(p.ModelName)
		ms.PutUint8(p.Direction)
		ms.PutFloat32(p.X, layout.Placement)
		ms.PutFloat32(p.Y, layout.Placement)
		ms.PutFloat32(p.Z, layout.Placement)
	}

	cs := binfmt.NewSection(binfmt.ThingConfig)
	cs.PutUint16(uint16(len(t.Configs)))
	for i, c := range t.Configs {
		idx, ok := keys.Index(c.Key)
		if !ok {
			return nil, asset.InvalidAt(asset.ErrUnknownConfigKey, fmt.Sprintf("configs[%d].key", i), i, fmt.Sprintf("%q", c.Key))
		}
		size, b, err := binfmt.EncodeValue(c.Value, layout.ConfigFloat)
		if err != nil {
			return nil, fmt.Errorf("configs[%d] %s: %w", i, c.Key, err)
		}
		cs.PutUint8(idx)
		cs.PutUint16(uint16(size))
		cs.Add(b)
	}
	return binfmt.Concat(h, ms, cs)
}

// RawPair is a config pair as stored on disk. The value's kind is not
// recorded in the file; As interprets it.
type RawPair struct {
	Key string `json:"key"`
	Raw []byte `json:"-"`
}

func (p RawPair) As(kind binfmt.ValueKind, layout binfmt.Layout) (binfmt.Value, error) {
	return binfmt.DecodeValue(kind, p.Raw, layout.ConfigFloat)
}

func (p RawPair) Hex() string { return hex.EncodeToString(p.Raw) }

// Decoded is a .thing file read back from disk.
type Decoded struct {
	Author  string      `json:"author"`
	Name    string      `json:"name"`
	Key     uint8       `json:"key"`
	Models  []Placement `json:"models"`
	Configs []RawPair   `json:"configs"`
}

func Decode(data []byte, keys *keytable.Table, layout binfmt.Layout) (Decoded, error) {
	var d Decoded
	r := binfmt.NewReader(data)

	h := r.Section(binfmt.ThingHeader)
	version := h.Uint16()
	d.Author = h.String16()
	d.Name = h.String16()
	d.Key = h.Uint8()
	if err := h.Done(); err != nil {
		return d, fmt.Errorf("thing header: %w", err)
	}
	if version != asset.FormatVersion {
		return d, fmt.Errorf("%w: thing v%d", asset.ErrUnsupportedVersion, version)
	}

	ms := r.Section(binfmt.ThingModels)
	n := int(ms.Uint16())
	for i := 0; i < n && ms.Err() == nil; i++ {
		var p Placement
		p.AuthorName = ms.String16()
		p.ModelName = ms.String16()
		p.Direction = ms.Uint8()
		p.X = ms.Float32(layout.Placement)
		p.Y = ms.Float32(layout.Placement)
		p.Z = ms.Float32(layout.Placement)
		d.Models = append(d.Models, p)
	}
	if err := ms.Done(); err != nil {
		return d, fmt.Errorf("thing models: %w", err)
	}

	cs := r.Section(binfmt.ThingConfig)
	n = int(cs.Uint16())
	for i := 0; i < n && cs.Err() == nil; i++ {
		idx := cs.Uint8()
		size := int(cs.Uint16())
		raw := cs.Bytes(size)
		if cs.Err() != nil {
			break
		}
		name, ok := keys.Name(idx)
		if !ok {
			return d, asset.InvalidAt(asset.ErrUnknownConfigKey, fmt.Sprintf("configs[%d].key", i), i, fmt.Sprintf("index %d", idx))
		}
		d.Configs = append(d.Configs, RawPair{Key: name, Raw: raw})
	}
	if err := cs.Done(); err != nil {
		return d, fmt.Errorf("thing configs: %w", err)
	}
	return d, r.End()
}
