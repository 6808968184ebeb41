package model

import (
	"encoding/json"
	"strconv"

	"cityforge.dev/internal/asset"
)

// Input is the JSON document describing a model. It is either written by
// hand in one file or merged from the content tool's export (dimensions and
// directions) and a small config file carrying the shape.
type Input struct {
	Shape      *int                       `json:"shape"`
	XSize      *float32                   `json:"xSize"`
	YSize      *float32                   `json:"ySize"`
	ZSize      *float32                   `json:"zSize"`
	Directions map[string]*DirectionInput `json:"directions"`
}

type DirectionInput struct {
	TB *Point `json:"tb"`
	TR *Point `json:"tr"`
	TF *Point `json:"tf"`
	TL *Point `json:"tl"`
	BL *Point `json:"bl"`
	BF *Point `json:"bf"`
	BR *Point `json:"br"`
}

func ParseInput(data []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return in, asset.InvalidJSON("model", err)
	}
	return in, nil
}

// MergeInput combines the content tool export with the model config file.
// Fields present in config win.
func MergeInput(export, config []byte) (Input, error) {
	in, err := ParseInput(export)
	if err != nil {
		return in, err
	}
	cfg, err := ParseInput(config)
	if err != nil {
		return in, err
	}
	if cfg.Shape != nil {
		in.Shape = cfg.Shape
	}
	if cfg.XSize != nil {
		in.XSize = cfg.XSize
	}
	if cfg.YSize != nil {
		in.YSize = cfg.YSize
	}
	if cfg.ZSize != nil {
		in.ZSize = cfg.ZSize
	}
	return in, nil
}

// Model validates the input and assembles a Model. Every one of the eight
// directions must be present with all seven points; nothing is zero-filled.
func (in Input) Model(author, name string) (Model, error) {
	m := Model{Author: author, Name: name}
	if in.Shape == nil {
		return m, asset.Invalid(asset.ErrMissingField, "shape", "")
	}
	if *in.Shape < 0 || *in.Shape > 255 {
		return m, asset.Invalid(asset.ErrUnsupportedShape, "shape", strconv.Itoa(*in.Shape))
	}
	m.Shape = Shape(*in.Shape)
	if err := checkShape(m.Shape); err != nil {
		return m, err
	}

	for i, p := range []struct {
		field string
		v     *float32
	}{{"xSize", in.XSize}, {"ySize", in.YSize}, {"zSize", in.ZSize}} {
		if p.v == nil {
			return m, asset.Invalid(asset.ErrMissingField, p.field, "")
		}
		m.Dimensions[i] = *p.v
	}

	for d := 0; d < Directions; d++ {
		key := strconv.Itoa(d)
		dj := in.Directions[key]
		if dj == nil {
			return m, asset.InvalidAt(asset.ErrMissingDirectionData, "directions."+key, d, "")
		}
		var pts [PointsPerDirection]Point
		for i, p := range []struct {
			field string
			v     *Point
		}{{"tb", dj.TB}, {"tr", dj.TR}, {"tf", dj.TF}, {"tl", dj.TL}, {"bl", dj.BL}, {"bf", dj.BF}, {"br", dj.BR}} {
			if p.v == nil {
				return m, asset.InvalidAt(asset.ErrMissingField, "directions."+key+"."+p.field, d, "")
			}
			pts[i] = *p.v
		}
		m.Directions[d] = directionFromPoints(pts)
	}
	return m, nil
}
