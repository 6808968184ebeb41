// Package build turns the JSON inputs found in the configured directories
// into .model, .thing and .city files.
package build

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
	"cityforge.dev/internal/asset/keytable"
	"cityforge.dev/internal/asset/model"
	"cityforge.dev/internal/asset/save"
	"cityforge.dev/internal/asset/schema"
	"cityforge.dev/internal/asset/thing"
	"cityforge.dev/internal/config"
	"cityforge.dev/internal/persistence/atomicfile"
	"cityforge.dev/internal/persistence/index"
	"cityforge.dev/internal/persistence/journal"
)

// Input file suffixes.
const (
	ModelSuffix       = ".model.json"
	ModelExportSuffix = ".model.blendout.json"
	ModelConfigSuffix = ".model.config.json"
	ThingSuffix       = ".thing.json"
	SaveSuffix        = ".save.json"
)

type Builder struct {
	cfg    config.Config
	keys   *keytable.Table
	layout binfmt.Layout

	index   *index.SQLiteIndex
	journal *journal.BuildLogger
	log     *slog.Logger

	keysMu       sync.Mutex
	keysRecorded bool
}

// Options carries the optional collaborators of a Builder. Nil fields
// disable the index, the journal or logging.
type Options struct {
	Index   *index.SQLiteIndex
	Journal *journal.BuildLogger
	Logger  *slog.Logger
}

func New(cfg config.Config, keys *keytable.Table, opts Options) *Builder {
	if keys == nil {
		keys = keytable.Builtin()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	return &Builder{
		cfg:     cfg,
		keys:    keys,
		layout:  cfg.Layout(),
		index:   opts.Index,
		journal: opts.Journal,
		log:     logger,
	}
}

// Open loads the configured key table and opens the index and journal.
func Open(cfg config.Config, logger *slog.Logger) (*Builder, error) {
	keys := keytable.Builtin()
	if cfg.KeyTable != "" {
		var err error
		if keys, err = keytable.Load(cfg.KeyTable); err != nil {
			return nil, err
		}
	}
	opts := Options{Logger: logger}
	if cfg.IndexDB != "" {
		idx, err := index.OpenSQLite(cfg.IndexDB)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		opts.Index = idx
	}
	if cfg.JournalDir != "" {
		opts.Journal = journal.NewBuildLogger(cfg.JournalDir)
	}
	return New(cfg, keys, opts), nil
}

func (b *Builder) Close() error {
	var errs []error
	if b.journal != nil {
		errs = append(errs, b.journal.Close())
	}
	if b.index != nil {
		errs = append(errs, b.index.Close())
	}
	return errors.Join(errs...)
}

func (b *Builder) Keys() *keytable.Table     { return b.keys }
func (b *Builder) Layout() binfmt.Layout     { return b.layout }
func (b *Builder) Index() *index.SQLiteIndex { return b.index }
func (b *Builder) Config() config.Config     { return b.cfg }

// Result describes one written output.
type Result struct {
	Kind   asset.Kind `json:"kind"`
	Name   string     `json:"name"`
	Input  string     `json:"input"`
	Output string     `json:"output"`
	Bytes  int        `json:"bytes"`
	Digest string     `json:"digest"`
}

// BuildModel reads {author}-{name}.model.json, or the content tool export
// plus config pair, and writes {author}-{name}.model.
func (b *Builder) BuildModel(ctx context.Context, author, name string) (Result, error) {
	full := asset.FullName(author, name)
	dir := b.cfg.InputDir(asset.KindModel)
	single := filepath.Join(dir, full+ModelSuffix)
	export := filepath.Join(dir, full+ModelExportSuffix)

	input := single
	if _, err := os.Stat(single); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat(export); err == nil {
			input = export
		}
	}

	return b.build(ctx, asset.KindModel, author, name, input, func() ([]byte, error) {
		var in model.Input
		if input == export {
			exportDoc, err := readInput(asset.KindModel, export)
			if err != nil {
				return nil, err
			}
			configPath := filepath.Join(dir, full+ModelConfigSuffix)
			configDoc, err := readInput(asset.KindModel, configPath)
			if err != nil {
				return nil, err
			}
			if in, err = model.MergeInput(exportDoc, configDoc); err != nil {
				return nil, err
			}
		} else {
			doc, err := readInput(asset.KindModel, single)
			if err != nil {
				return nil, err
			}
			if in, err = model.ParseInput(doc); err != nil {
				return nil, err
			}
		}
		m, err := in.Model(author, name)
		if err != nil {
			return nil, err
		}
		return model.Encode(m, b.layout)
	})
}

// BuildThing reads {author}-{name}.thing.json and writes {author}-{name}.thing.
func (b *Builder) BuildThing(ctx context.Context, author, name string) (Result, error) {
	input := filepath.Join(b.cfg.InputDir(asset.KindThing), asset.FullName(author, name)+ThingSuffix)
	return b.build(ctx, asset.KindThing, author, name, input, func() ([]byte, error) {
		if err := b.recordKeys(ctx); err != nil {
			return nil, err
		}
		doc, err := readInput(asset.KindThing, input)
		if err != nil {
			return nil, err
		}
		in, err := thing.Parse(doc)
		if err != nil {
			return nil, err
		}
		t, err := in.Thing(author, name)
		if err != nil {
			return nil, err
		}
		if b.cfg.VerifyReferences {
			for i, p := range t.Models {
				if err := b.requireOutput(asset.KindModel, p.ModelFullName()); err != nil {
					return nil, asset.InvalidAt(asset.ErrMissingReference, fmt.Sprintf("models[%d]", i), i, err.Error())
				}
			}
		}
		return thing.Encode(t, b.keys, b.layout)
	})
}

// BuildSave reads {name}.save.json and writes {name}.city.
func (b *Builder) BuildSave(ctx context.Context, name string) (Result, error) {
	input := filepath.Join(b.cfg.InputDir(asset.KindSave), name+SaveSuffix)
	return b.build(ctx, asset.KindSave, "", name, input, func() ([]byte, error) {
		doc, err := readInput(asset.KindSave, input)
		if err != nil {
			return nil, err
		}
		in, err := save.Parse(doc)
		if err != nil {
			return nil, err
		}
		s, err := in.SaveFile()
		if err != nil {
			return nil, err
		}
		if b.cfg.VerifyReferences {
			for i, n := range s.MetaThings {
				if err := b.requireOutput(asset.KindThing, n); err != nil {
					return nil, asset.InvalidAt(asset.ErrMissingReference, fmt.Sprintf("metaThings[%d]", i), i, err.Error())
				}
			}
		}
		return save.Encode(s, b.layout)
	})
}

// build runs encode and, when it succeeds, atomically replaces the output
// file, then records the result in the index and the journal. Nothing is
// written when encode fails.
func (b *Builder) build(ctx context.Context, kind asset.Kind, author, name, input string, encode func() ([]byte, error)) (Result, error) {
	res := Result{
		Kind:   kind,
		Name:   fullName(kind, author, name),
		Input:  input,
		Output: filepath.Join(b.cfg.OutputDir(kind), asset.FileName(kind, author, name)),
	}
	start := time.Now()
	log := b.log.With("kind", string(kind), "name", res.Name)

	err := ctx.Err()
	var data []byte
	if err == nil {
		data, err = encode()
	}
	if err == nil {
		err = atomicfile.Write(res.Output, data)
	}
	if err != nil {
		err = fmt.Errorf("build %s %s: %w", kind, res.Name, err)
		log.Error("build failed", "input", input, "err", err)
		b.journalEntry(res, err)
		return res, err
	}

	sum := blake3.Sum256(data)
	res.Bytes = len(data)
	res.Digest = hex.EncodeToString(sum[:])

	rec := index.AssetRecord{
		Kind:    kind,
		Name:    res.Name,
		Path:    res.Output,
		Size:    int64(len(data)),
		Digest:  res.Digest,
		Version: int(asset.FormatVersion),
		Layout:  b.layout.Name,
		BuiltAt: time.Now(),
	}
	if kind == asset.KindThing {
		rec.KeyTableDigest = b.keys.Digest()
	}
	if b.index != nil {
		if err := b.index.RecordAsset(ctx, rec); err != nil {
			log.Warn("index update failed", "err", err)
		}
	}
	b.journalEntry(res, nil)
	log.Info("built",
		"output", res.Output,
		"size", humanize.Bytes(uint64(res.Bytes)),
		"layout", b.layout.Name,
		"took", time.Since(start).Round(time.Microsecond),
	)
	return res, nil
}

func (b *Builder) journalEntry(res Result, err error) {
	if b.journal == nil {
		return
	}
	e := journal.Entry{
		Kind:   res.Kind,
		Name:   res.Name,
		Input:  res.Input,
		Layout: b.layout.Name,
	}
	if err != nil {
		e.Error = err.Error()
	} else {
		e.Output = res.Output
		e.Bytes = res.Bytes
		e.Digest = res.Digest
	}
	if jerr := b.journal.WriteBuild(e); jerr != nil {
		b.log.Warn("journal write failed", "err", jerr)
	}
}

// recordKeys checks the key table against the index history. Only a
// successful check is remembered; a failed one is retried by the next build.
func (b *Builder) recordKeys(ctx context.Context) error {
	if b.index == nil {
		return nil
	}
	b.keysMu.Lock()
	defer b.keysMu.Unlock()
	if b.keysRecorded {
		return nil
	}
	if err := b.index.RecordKeyTable(ctx, b.keys); err != nil {
		return err
	}
	b.keysRecorded = true
	return nil
}

func (b *Builder) requireOutput(kind asset.Kind, full string) error {
	path := filepath.Join(b.cfg.OutputDir(kind), full+"."+kind.Ext())
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s not built", filepath.Base(path))
		}
		return asset.NewIOError("stat", path, err)
	}
	return nil
}

func fullName(kind asset.Kind, author, name string) string {
	if kind == asset.KindSave {
		return name
	}
	return asset.FullName(author, name)
}

// readInput reads an input file, strips JSONC comments and validates it
// against the schema for kind. The returned document is plain JSON.
func readInput(kind asset.Kind, path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, asset.NewIOError("read", path, err)
	}
	doc := jsonc.ToJSON(raw)
	if err := schema.Validate(kind, doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// Target names one buildable input.
type Target struct {
	Kind   asset.Kind
	Author string
	Name   string
}

func (t Target) String() string { return string(t.Kind) + " " + fullName(t.Kind, t.Author, t.Name) }

// Discover lists every input in the configured directories: models first,
// then things, then saves, each sorted by name.
func (b *Builder) Discover() ([]Target, error) {
	var out []Target
	for _, kind := range asset.Kinds() {
		dir := b.cfg.InputDir(kind)
		ents, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, asset.NewIOError("readdir", dir, err)
		}
		var found []Target
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			if t, ok := targetFromFile(kind, e.Name()); ok {
				found = append(found, t)
			}
		}
		sort.Slice(found, func(i, j int) bool {
			return fullName(kind, found[i].Author, found[i].Name) < fullName(kind, found[j].Author, found[j].Name)
		})
		out = append(out, found...)
	}
	return out, nil
}

func targetFromFile(kind asset.Kind, file string) (Target, bool) {
	var stem string
	switch kind {
	case asset.KindModel:
		// The config half of a pair is picked up with its export.
		switch {
		case strings.HasSuffix(file, ModelExportSuffix):
			stem = strings.TrimSuffix(file, ModelExportSuffix)
		case strings.HasSuffix(file, ModelConfigSuffix):
			return Target{}, false
		case strings.HasSuffix(file, ModelSuffix):
			stem = strings.TrimSuffix(file, ModelSuffix)
		default:
			return Target{}, false
		}
	case asset.KindThing:
		if !strings.HasSuffix(file, ThingSuffix) {
			return Target{}, false
		}
		stem = strings.TrimSuffix(file, ThingSuffix)
	case asset.KindSave:
		if !strings.HasSuffix(file, SaveSuffix) {
			return Target{}, false
		}
		name := strings.TrimSuffix(file, SaveSuffix)
		return Target{Kind: kind, Name: name}, name != ""
	}
	author, name, ok := SplitFullName(stem)
	if !ok {
		return Target{}, false
	}
	return Target{Kind: kind, Author: author, Name: name}, true
}

// SplitFullName splits "{author}-{name}" at the first dash.
func SplitFullName(full string) (author, name string, ok bool) {
	author, name, ok = strings.Cut(full, "-")
	return author, name, ok && author != "" && name != ""
}

// Build builds a single target.
func (b *Builder) Build(ctx context.Context, t Target) (Result, error) {
	switch t.Kind {
	case asset.KindModel:
		return b.BuildModel(ctx, t.Author, t.Name)
	case asset.KindThing:
		return b.BuildThing(ctx, t.Author, t.Name)
	case asset.KindSave:
		return b.BuildSave(ctx, t.Name)
	}
	return Result{}, fmt.Errorf("unknown asset kind %q", t.Kind)
}

// BuildAll builds every discovered input in dependency order. A failing
// input does not stop the others; the returned error joins every failure.
func (b *Builder) BuildAll(ctx context.Context) ([]Result, error) {
	targets, err := b.Discover()
	if err != nil {
		return nil, err
	}
	var (
		results []Result
		errs    []error
	)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := b.Build(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	b.log.Info("build all finished", "built", len(results), "failed", len(errs))
	return results, errors.Join(errs...)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
