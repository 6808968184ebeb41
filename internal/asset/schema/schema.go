// Package schema checks input documents against the JSON Schemas embedded in
// schemas/ before they reach a codec. The schemas check types and ranges only;
// presence of required data is left to the codecs, which report it with
// domain errors (missing direction, unknown key, ...).
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"cityforge.dev/internal/asset"
)

//go:embed schemas/*.schema.json
var files embed.FS

const baseURL = "https://cityforge.dev/schemas/"

var (
	once     sync.Once
	compiled map[asset.Kind]*jsonschema.Schema
	initErr  error
)

func load() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	compiled = map[asset.Kind]*jsonschema.Schema{}
	for _, k := range asset.Kinds() {
		name := string(k) + ".schema.json"
		raw, err := files.ReadFile("schemas/" + name)
		if err != nil {
			initErr = err
			return
		}
		if err := c.AddResource(baseURL+name, bytes.NewReader(raw)); err != nil {
			initErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	for _, k := range asset.Kinds() {
		name := string(k) + ".schema.json"
		s, err := c.Compile(baseURL + name)
		if err != nil {
			initErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		compiled[k] = s
	}
}

// Raw returns the embedded schema document for k.
func Raw(k asset.Kind) ([]byte, error) {
	return files.ReadFile("schemas/" + string(k) + ".schema.json")
}

// Validate checks a plain JSON document (comments already stripped).
func Validate(k asset.Kind, doc []byte) error {
	once.Do(load)
	if initErr != nil {
		return initErr
	}
	s, ok := compiled[k]
	if !ok {
		return fmt.Errorf("no schema for %q", k)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return asset.Invalid(asset.ErrSchema, string(k), err.Error())
	}
	if err := s.Validate(v); err != nil {
		return asset.Invalid(asset.ErrSchema, string(k), err.Error())
	}
	return nil
}
