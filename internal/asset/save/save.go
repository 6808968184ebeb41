// Package save builds and reads .city world save files.
//
// Layout:
//
//	header     u16 size (incl.), u16 version, str16 name
//	terrain    u32 size (excl.), u8 strategy, str16 path
//	metaThings u32 size (excl.), u32 count, count x str16 name
//	things     u32 size (excl.), u32 count,
//	           count x (u32 meta-thing index, u8 direction, f32 x, y, z)
package save

import (
	"fmt"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
)

// TerrainHeightMap references an external height-map image by path. It is the
// only storage strategy the engine knows.
const TerrainHeightMap uint8 = 0

// InstanceSize is the on-disk size of one placed thing.
const InstanceSize = 4 + 1 + 3*4

type Terrain struct {
	Strategy uint8  `json:"strategy"`
	Path     string `json:"path"`
}

// Instance is one placed thing. MetaThingIndex points into SaveFile.MetaThings.
type Instance struct {
	MetaThingIndex uint32  `json:"metaThingIndex"`
	Direction      uint8   `json:"direction"`
	X              float32 `json:"x"`
	Y              float32 `json:"y"`
	Z              float32 `json:"z"`
}

type SaveFile struct {
	Name       string     `json:"name"`
	Terrain    Terrain    `json:"terrain"`
	MetaThings []string   `json:"metaThings"`
	Things     []Instance `json:"things"`
}

// HeaderSize is the declared size of a save header.
func HeaderSize(name string) int { return 2 + 2 + 2 + len(name) }

// Validate checks the table invariants: names unique, every instance index in
// range, a known terrain strategy.
func (s SaveFile) Validate() error {
	if s.Name == "" {
		return asset.Invalid(asset.ErrMissingField, "name", "")
	}
	if s.Terrain.Strategy != TerrainHeightMap {
		return asset.Invalid(asset.ErrUnsupportedTerrain, "terrainStrategy", fmt.Sprintf("%d", s.Terrain.Strategy))
	}
	seen := make(map[string]int, len(s.MetaThings))
	for i, n := range s.MetaThings {
		if n == "" {
			return asset.InvalidAt(asset.ErrMissingField, fmt.Sprintf("metaThings[%d]", i), i, "")
		}
		if j, dup := seen[n]; dup {
			return asset.InvalidAt(asset.ErrDuplicateMetaThing, fmt.Sprintf("metaThings[%d]", i), i, fmt.Sprintf("%q already at %d", n, j))
		}
		seen[n] = i
	}
	for i, t := range s.Things {
		if int64(t.MetaThingIndex) >= int64(len(s.MetaThings)) {
			return asset.InvalidAt(asset.ErrUnknownMetaThing, fmt.Sprintf("things[%d].metaThingIndex", i), i,
				fmt.Sprintf("index %d, table has %d entries", t.MetaThingIndex, len(s.MetaThings)))
		}
	}
	return nil
}

func Encode(s SaveFile, layout binfmt.Layout) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	h := binfmt.NewSection(binfmt.SaveHeader)
	h.PutUint16(asset.FormatVersion)
	h.PutString16(s.Name)

	tr := binfmt.NewSection(binfmt.SaveTerrain)
	tr.PutUint8(s.Terrain.Strategy)
	tr.PutString16(s.Terrain.Path)

	mt := binfmt.NewSection(binfmt.SaveMetaThings)
	mt.PutUint32(uint32(len(s.MetaThings)))
	for _, n := range s.MetaThings {
		mt.PutString16(n)
	}

	th := binfmt.NewSection(binfmt.SaveThings)
	th.PutUint32(uint32(len(s.Things)))
	for _, t := range s.Things {
		th.PutUint32(t.MetaThingIndex)
		th.PutUint8(t.Direction)
		th.PutFloat32(t.X, layout.Instance)
		th.PutFloat32(t.Y, layout.Instance)
		th.PutFloat32(t.Z, layout.Instance)
	}
	return binfmt.Concat(h, tr, mt, th)
}

func Decode(data []byte, layout binfmt.Layout) (SaveFile, error) {
	var s SaveFile
	r := binfmt.NewReader(data)

	h := r.Section(binfmt.SaveHeader)
	version := h.Uint16()
	s.Name = h.String16()
	if err := h.Done(); err != nil {
		return s, fmt.Errorf("save header: %w", err)
	}
	if version != asset.FormatVersion {
		return s, fmt.Errorf("%w: save v%d", asset.ErrUnsupportedVersion, version)
	}

	tr := r.Section(binfmt.SaveTerrain)
	s.Terrain.Strategy = tr.Uint8()
	s.Terrain.Path = tr.String16()
	if err := tr.Done(); err != nil {
		return s, fmt.Errorf("save terrain: %w", err)
	}

	mt := r.Section(binfmt.SaveMetaThings)
	n := mt.Uint32()
	for i := uint32(0); i < n && mt.Err() == nil; i++ {
		s.MetaThings = append(s.MetaThings, mt.String16())
	}
	if err := mt.Done(); err != nil {
		return s, fmt.Errorf("save meta-things: %w", err)
	}

	th := r.Section(binfmt.SaveThings)
	n = th.Uint32()
	if int64(n)*InstanceSize > int64(th.Remaining()) {
		return s, fmt.Errorf("save things: %w: %d instances declared, %d bytes left", asset.ErrTruncated, n, th.Remaining())
	}
	s.Things = make([]Instance, 0, n)
	for i := uint32(0); i < n; i++ {
		s.Things = append(s.Things, Instance{
			MetaThingIndex: th.Uint32(),
			Direction:      th.Uint8(),
			X:              th.Float32(layout.Instance),
			Y:              th.Float32(layout.Instance),
			Z:              th.Float32(layout.Instance),
		})
	}
	if err := th.Done(); err != nil {
		return s, fmt.Errorf("save things: %w", err)
	}
	if err := r.End(); err != nil {
		return s, err
	}
	return s, s.Validate()
}
