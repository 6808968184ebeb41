// Package model builds and reads .model files: the geometry and per-direction
// UV coordinates of a 3D sprite.
//
// Layout:
//
//	header   u16 size (incl.), u16 version, u8 shape, u8 images embedded,
//	         str16 author, str16 name
//	geometry u16 size (incl.), f32 x, y, z,
//	         8 directions x 7 points (tb tr tf tl bl bf br) x 2 f32
package model

import (
	"fmt"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
)

type Shape uint8

const (
	Sprite3D Shape = 0
	Sprite2D Shape = 1
)

func (s Shape) String() string {
	switch s {
	case Sprite3D:
		return "3d-sprite"
	case Sprite2D:
		return "2d-sprite"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

const (
	Directions         = 8
	PointsPerDirection = 7

	// GeometrySize3D is the declared size of a 3D sprite geometry section:
	// its own prefix, three dimensions and 8*7 UV points.
	GeometrySize3D = 2 + 3*4 + Directions*PointsPerDirection*2*4
)

// Point is a UV coordinate pair.
type Point [2]float32

// DirectionUV holds the projected corners of the bounding box for one
// camera direction.
type DirectionUV struct {
	TopBack     Point `json:"tb"`
	TopRight    Point `json:"tr"`
	TopFront    Point `json:"tf"`
	TopLeft     Point `json:"tl"`
	BottomLeft  Point `json:"bl"`
	BottomFront Point `json:"bf"`
	BottomRight Point `json:"br"`
}

// Points returns the points in file order.
func (d DirectionUV) Points() [PointsPerDirection]Point {
	return [PointsPerDirection]Point{d.TopBack, d.TopRight, d.TopFront, d.TopLeft, d.BottomLeft, d.BottomFront, d.BottomRight}
}

func directionFromPoints(p [PointsPerDirection]Point) DirectionUV {
	return DirectionUV{
		TopBack:     p[0],
		TopRight:    p[1],
		TopFront:    p[2],
		TopLeft:     p[3],
		BottomLeft:  p[4],
		BottomFront: p[5],
		BottomRight: p[6],
	}
}

type Model struct {
	Author     string                  `json:"author"`
	Name       string                  `json:"name"`
	Shape      Shape                   `json:"shape"`
	Dimensions [3]float32              `json:"dimensions"`
	Directions [Directions]DirectionUV `json:"directions"`
}

// HeaderSize is the declared size of a model header.
func HeaderSize(author, name string) int {
	return 2 + 2 + 1 + 1 + 2 + len(author) + 2 + len(name)
}

func checkShape(s Shape) error {
	switch s {
	case Sprite3D:
		return nil
	case Sprite2D:
		return asset.Invalid(asset.ErrNotImplemented, "shape", "2d sprites")
	}
	return asset.Invalid(asset.ErrUnsupportedShape, "shape", fmt.Sprintf("%d", uint8(s)))
}

func checkName(field, v string) error {
	if v == "" {
		return asset.Invalid(asset.ErrMissingField, field, "")
	}
	if len(v) > binfmt.MaxUint16 {
		return asset.Invalid(asset.ErrFieldTooLong, field, fmt.Sprintf("%d bytes", len(v)))
	}
	return nil
}

// Encode returns the complete .model file for m.
func Encode(m Model, layout binfmt.Layout) ([]byte, error) {
	if err := checkShape(m.Shape); err != nil {
		return nil, err
	}
	if err := checkName("author", m.Author); err != nil {
		return nil, err
	}
	if err := checkName("name", m.Name); err != nil {
		return nil, err
	}

	h := binfmt.NewSection(binfmt.ModelHeader)
	h.PutUint16(asset.FormatVersion)
	h.PutUint8(uint8(m.Shape))
	h.PutUint8(0) // images embedded
	h.PutString16(m.Author)
	h.PutString16(m.Name)

	g := binfmt.NewSection(binfmt.ModelGeometry)
	for _, d := range m.Dimensions {
		g.PutFloat32(d, layout.Geometry)
	}
	for _, dir := range m.Directions {
		for _, p := range dir.Points() {
			g.PutFloat32(p[0], layout.Geometry)
			g.PutFloat32(p[1], layout.Geometry)
		}
	}
	return binfmt.Concat(h, g)
}

// Decode reads a .model file written with the same layout.
func Decode(data []byte, layout binfmt.Layout) (Model, error) {
	var m Model
	r := binfmt.NewReader(data)

	h := r.Section(binfmt.ModelHeader)
	version := h.Uint16()
	m.Shape = Shape(h.Uint8())
	h.Uint8() // images embedded
	m.Author = h.String16()
	m.Name = h.String16()
	if err := h.Done(); err != nil {
		return m, fmt.Errorf("model header: %w", err)
	}
	if version != asset.FormatVersion {
		return m, fmt.Errorf("%w: model v%d", asset.ErrUnsupportedVersion, version)
	}
	if err := checkShape(m.Shape); err != nil {
		return m, err
	}

	g := r.Section(binfmt.ModelGeometry)
	for i := range m.Dimensions {
		m.Dimensions[i] = g.Float32(layout.Geometry)
	}
	for d := range m.Directions {
		var pts [PointsPerDirection]Point
		for i := range pts {
			pts[i][0] = g.Float32(layout.Geometry)
			pts[i][1] = g.Float32(layout.Geometry)
		}
		m.Directions[d] = directionFromPoints(pts)
	}
	if err := g.Done(); err != nil {
		return m, fmt.Errorf("model geometry: %w", err)
	}
	return m, r.End()
}
