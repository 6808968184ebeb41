// Package config loads assetc.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
)

type Config struct {
	ModelsDir string `yaml:"models_dir"`
	ThingsDir string `yaml:"things_dir"`
	SavesDir  string `yaml:"saves_dir"`
	// OutDir collects every built file; when empty each output is written
	// next to its input.
	OutDir string `yaml:"out_dir"`

	// KeyTable is an optional YAML file listing config keys; the builtin
	// table is used when empty.
	KeyTable    string `yaml:"key_table"`
	FloatLayout string `yaml:"float_layout"`

	IndexDB    string `yaml:"index_db"`
	JournalDir string `yaml:"journal_dir"`

	VerifyReferences bool `yaml:"verify_references"`
}

func Default() Config {
	return Config{
		ModelsDir:   "assets/models",
		ThingsDir:   "assets/things",
		SavesDir:    "assets/saves",
		FloatLayout: binfmt.LegacyLayout.Name,
		IndexDB:     "build/index.db",
		JournalDir:  "build/journal",
	}
}

// Load reads path over the defaults. Relative paths in the file are resolved
// against the file's directory.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	c.resolve(filepath.Dir(path))
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

func (c *Config) resolve(base string) {
	for _, p := range []*string{&c.ModelsDir, &c.ThingsDir, &c.SavesDir, &c.OutDir, &c.KeyTable, &c.IndexDB, &c.JournalDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

func (c Config) Validate() error {
	if _, err := binfmt.ParseLayout(c.FloatLayout); err != nil {
		return err
	}
	return nil
}

// InputDir is where inputs of kind k are looked up.
func (c Config) InputDir(k asset.Kind) string {
	switch k {
	case asset.KindModel:
		return c.ModelsDir
	case asset.KindThing:
		return c.ThingsDir
	default:
		return c.SavesDir
	}
}

// OutputDir is where outputs of kind k are written.
func (c Config) OutputDir(k asset.Kind) string {
	if c.OutDir != "" {
		return c.OutDir
	}
	return c.InputDir(k)
}

func (c Config) Layout() binfmt.Layout {
	l, err := binfmt.ParseLayout(c.FloatLayout)
	if err != nil {
		return binfmt.LegacyLayout
	}
	return l
}
