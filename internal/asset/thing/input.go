package thing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
)

// Input is the hand-authored .thing.json document. Comments and trailing
// commas are allowed.
type Input struct {
	Key     *int             `json:"key"`
	Models  []PlacementInput `json:"models"`
	Configs [][]any          `json:"configs"`
}

type PlacementInput struct {
	AuthorName *string  `json:"authorName"`
	ModelName  *string  `json:"modelName"`
	Direction  *int     `json:"direction"`
	X          *float32 `json:"x"`
	Y          *float32 `json:"y"`
	Z          *float32 `json:"z"`
}

// ParseInput decodes a JSONC thing document.
func ParseInput(data []byte) (Input, error) { return Parse(jsonc.ToJSON(data)) }

// Parse decodes a thing document that is already plain JSON.
func Parse(doc []byte) (Input, error) {
	var in Input
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return in, asset.InvalidJSON("thing", err)
	}
	return in, nil
}

// Thing validates the input and assembles a Thing. Config keys are checked
// later, by Encode, against the injected key table.
func (in Input) Thing(author, name string) (Thing, error) {
	t := Thing{Author: author, Name: name, Key: DefaultKey}
	if in.Key != nil {
		if *in.Key < 0 || *in.Key > 255 {
			return t, asset.Invalid(asset.ErrSchema, "key", fmt.Sprintf("%d does not fit a byte", *in.Key))
		}
		t.Key = uint8(*in.Key)
	}
	if in.Models == nil {
		return t, asset.Invalid(asset.ErrMissingField, "models", "")
	}
	if in.Configs == nil {
		return t, asset.Invalid(asset.ErrMissingField, "configs", "")
	}

	t.Models = make([]Placement, 0, len(in.Models))
	for i, pm := range in.Models {
		field := func(f string) string { return fmt.Sprintf("models[%d].%s", i, f) }
		switch {
		case pm.AuthorName == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("authorName"), i, "")
		case pm.ModelName == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("modelName"), i, "")
		case pm.Direction == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("direction"), i, "")
		case pm.X == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("x"), i, "")
		case pm.Y == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("y"), i, "")
		case pm.Z == nil:
			return t, asset.InvalidAt(asset.ErrMissingField, field("z"), i, "")
		}
		if *pm.Direction < 0 || *pm.Direction > 7 {
			return t, asset.InvalidAt(asset.ErrSchema, field("direction"), i, fmt.Sprintf("%d not in 0..7", *pm.Direction))
		}
		t.Models = append(t.Models, Placement{
			AuthorName: *pm.AuthorName,
			ModelName:  *pm.ModelName,
			Direction:  uint8(*pm.Direction),
			X:          *pm.X,
			Y:          *pm.Y,
			Z:          *pm.Z,
		})
	}

	t.Configs = make([]ConfigPair, 0, len(in.Configs))
	for i, pair := range in.Configs {
		if len(pair) != 2 {
			return t, asset.InvalidAt(asset.ErrMissingField, fmt.Sprintf("configs[%d]", i), i, fmt.Sprintf("want [key, value], got %d elements", len(pair)))
		}
		key, ok := pair[0].(string)
		if !ok {
			return t, asset.InvalidAt(asset.ErrMissingField, fmt.Sprintf("configs[%d].key", i), i, "key must be a string")
		}
		v, err := binfmt.ValueFromJSON(pair[1])
		if err != nil {
			return t, asset.InvalidAt(asset.ErrUnsupportedValueKind, fmt.Sprintf("configs[%d].value", i), i, err.Error())
		}
		t.Configs = append(t.Configs, ConfigPair{Key: key, Value: v})
	}
	return t, nil
}
