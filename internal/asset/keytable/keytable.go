// Package keytable holds the canonical table of thing config keys. A key's
// position in the table is its one-byte binary encoding, so the table only
// ever grows at the end.
package keytable

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cityforge.dev/internal/asset"
)

// MaxKeys is the number of indices a one-byte key field can address.
const MaxKeys = 256

var builtin = []string{
	"thing_main_model",
	"thing_base_x_size",
	"thing_base_y_size",
	"thing_base_x_offset",
	"thing_base_y_offset",
	"thing_builds_foundation",
	"thing_digs_foundation",
	"thing_foundation_min_slope",
	"thing_built_foundation_wall_texture",
	"thing_built_foundation_cap_texture",
	"thing_dug_foundation_wall_texture",
	"thing_dug_foundation_floor_texture",
	"thing_has_footer",
	"thing_footer_model",
	"thing_has_pylon",
	"thing_pylon_model",
	"thing_pylon_align",
	"thing_pylon_repeat",
}

// Table is immutable once built. Share one *Table across encoders.
type Table struct {
	names  []string
	index  map[string]uint8
	digest string
}

type File struct {
	Keys []string `yaml:"keys"`
}

func New(names []string) (*Table, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("key table: empty")
	}
	if len(names) > MaxKeys {
		return nil, fmt.Errorf("key table: %d keys, max %d", len(names), MaxKeys)
	}
	t := &Table{
		names: append([]string(nil), names...),
		index: make(map[string]uint8, len(names)),
	}
	for i, n := range t.names {
		if n == "" {
			return nil, fmt.Errorf("key table: empty name at %d", i)
		}
		if j, dup := t.index[n]; dup {
			return nil, fmt.Errorf("key table: %q at %d duplicates %d", n, i, j)
		}
		t.index[n] = uint8(i)
	}
	b, _ := json.Marshal(t.names)
	sum := sha256.Sum256(b)
	t.digest = hex.EncodeToString(sum[:])
	return t, nil
}

// Builtin returns the table every thing file has been built with so far.
func Builtin() *Table {
	t, err := New(builtin)
	if err != nil {
		panic("keytable: builtin table invalid: " + err.Error())
	}
	return t
}

// Load reads a YAML key list and checks that it extends the builtin table.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, asset.NewIOError("read", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := New(f.Keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Extends(builtin); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Extends reports an error unless prev is a prefix of t.
func (t *Table) Extends(prev []string) error {
	if len(prev) > len(t.names) {
		return fmt.Errorf("%w: %d keys recorded, table has %d", asset.ErrKeyTableNotAppendOnly, len(prev), len(t.names))
	}
	for i, n := range prev {
		if t.names[i] != n {
			return fmt.Errorf("%w: index %d was %q, now %q", asset.ErrKeyTableNotAppendOnly, i, n, t.names[i])
		}
	}
	return nil
}

func (t *Table) Index(name string) (uint8, bool) {
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) Name(i uint8) (string, bool) {
	if int(i) >= len(t.names) {
		return "", false
	}
	return t.names[i], true
}

func (t *Table) Len() int { return len(t.names) }

func (t *Table) Names() []string { return append([]string(nil), t.names...) }

// Digest is the sha256 of the JSON encoded name list.
func (t *Table) Digest() string { return t.digest }
