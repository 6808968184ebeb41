package save

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"cityforge.dev/internal/asset"
)

// Input describes a world by thing name. MetaThings is optional: when given
// it is the table to encode against and every instance must name one of its
// entries; when absent the table is derived from the instances.
type Input struct {
	Name            *string         `json:"name"`
	TerrainPath     *string         `json:"terrainPath"`
	TerrainStrategy *int            `json:"terrainStrategy"`
	MetaThings      []string        `json:"metaThings"`
	Things          []InstanceInput `json:"things"`
}

type InstanceInput struct {
	Name      *string  `json:"name"`
	Direction *int     `json:"direction"`
	X         *float32 `json:"x"`
	Y         *float32 `json:"y"`
	Z         *float32 `json:"z"`
}

// ParseInput decodes a JSONC save document.
func ParseInput(data []byte) (Input, error) { return Parse(jsonc.ToJSON(data)) }

// Parse decodes a save document that is already plain JSON.
func Parse(doc []byte) (Input, error) {
	var in Input
	if err := json.NewDecoder(bytes.NewReader(doc)).Decode(&in); err != nil {
		return in, asset.InvalidJSON("save", err)
	}
	return in, nil
}

// MetaTable is an insertion-ordered set of thing names.
type MetaTable struct {
	names []string
	index map[string]uint32
}

func NewMetaTable() *MetaTable {
	return &MetaTable{index: map[string]uint32{}}
}

// Add registers name if needed and returns its index.
func (t *MetaTable) Add(name string) uint32 {
	if i, ok := t.index[name]; ok {
		return i
	}
	i := uint32(len(t.names))
	t.names = append(t.names, name)
	t.index[name] = i
	return i
}

func (t *MetaTable) Lookup(name string) (uint32, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *MetaTable) Names() []string { return append([]string(nil), t.names...) }

// SaveFile validates the input and resolves every instance against the
// meta-thing table.
func (in Input) SaveFile() (SaveFile, error) {
	var s SaveFile
	if in.Name == nil || *in.Name == "" {
		return s, asset.Invalid(asset.ErrMissingField, "name", "")
	}
	if in.TerrainPath == nil {
		return s, asset.Invalid(asset.ErrMissingField, "terrainPath", "")
	}
	s.Name = *in.Name
	s.Terrain = Terrain{Strategy: TerrainHeightMap, Path: *in.TerrainPath}
	if in.TerrainStrategy != nil {
		if *in.TerrainStrategy != int(TerrainHeightMap) {
			return s, asset.Invalid(asset.ErrUnsupportedTerrain, "terrainStrategy", fmt.Sprintf("%d", *in.TerrainStrategy))
		}
	}

	table := NewMetaTable()
	explicit := in.MetaThings != nil
	for i, n := range in.MetaThings {
		if n == "" {
			return s, asset.InvalidAt(asset.ErrMissingField, fmt.Sprintf("metaThings[%d]", i), i, "")
		}
		if _, dup := table.Lookup(n); dup {
			return s, asset.InvalidAt(asset.ErrDuplicateMetaThing, fmt.Sprintf("metaThings[%d]", i), i, fmt.Sprintf("%q", n))
		}
		table.Add(n)
	}

	s.Things = make([]Instance, 0, len(in.Things))
	for i, ti := range in.Things {
		field := func(f string) string { return fmt.Sprintf("things[%d].%s", i, f) }
		switch {
		case ti.Name == nil || *ti.Name == "":
			return s, asset.InvalidAt(asset.ErrMissingField, field("name"), i, "")
		case ti.Direction == nil:
			return s, asset.InvalidAt(asset.ErrMissingField, field("direction"), i, "")
		case ti.X == nil:
			return s, asset.InvalidAt(asset.ErrMissingField, field("x"), i, "")
		case ti.Y == nil:
			return s, asset.InvalidAt(asset.ErrMissingField, field("y"), i, "")
		case ti.Z == nil:
			return s, asset.InvalidAt(asset.ErrMissingField, field("z"), i, "")
		}
		if *ti.Direction < 0 || *ti.Direction > 7 {
			return s, asset.InvalidAt(asset.ErrSchema, field("direction"), i, fmt.Sprintf("%d not in 0..7", *ti.Direction))
		}

		var idx uint32
		if explicit {
			var ok bool
			if idx, ok = table.Lookup(*ti.Name); !ok {
				return s, asset.InvalidAt(asset.ErrUnknownMetaThing, field("name"), i, fmt.Sprintf("%q", *ti.Name))
			}
		} else {
			idx = table.Add(*ti.Name)
		}
		s.Things = append(s.Things, Instance{
			MetaThingIndex: idx,
			Direction:      uint8(*ti.Direction),
			X:              *ti.X,
			Y:              *ti.Y,
			Z:              *ti.Z,
		})
	}
	s.MetaThings = table.Names()
	return s, nil
}
