package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/binfmt"
	"cityforge.dev/internal/asset/keytable"
	"cityforge.dev/internal/asset/model"
	"cityforge.dev/internal/asset/save"
	"cityforge.dev/internal/asset/thing"
	"cityforge.dev/internal/persistence/index"
	"cityforge.dev/internal/persistence/journal"
)

func subFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("assetc "+name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func loadKeys(e env) (*keytable.Table, error) {
	if e.cfg.KeyTable == "" {
		return keytable.Builtin(), nil
	}
	return keytable.Load(e.cfg.KeyTable)
}

type configView struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
	Hex  string `json:"hex"`
}

type thingView struct {
	Kind    asset.Kind        `json:"kind"`
	Author  string            `json:"author"`
	Name    string            `json:"name"`
	Key     uint8             `json:"key"`
	Models  []thing.Placement `json:"models"`
	Configs []configView      `json:"configs"`
}

func runInspect(e env, args []string) error {
	fs := subFlags("inspect")
	layoutName := fs.String("layout", e.cfg.FloatLayout, "float layout the file was written with")
	if err := fs.Parse(args); err != nil {
		return &usageError{msg: err.Error()}
	}
	if fs.NArg() != 1 {
		return usagef("usage: assetc inspect [--layout l] <file>")
	}
	path := fs.Arg(0)
	layout, err := binfmt.ParseLayout(*layoutName)
	if err != nil {
		return usagef("%v", err)
	}
	kind, ok := asset.KindFromPath(path)
	if !ok {
		return usagef("%s: not a .model, .thing or .city file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return asset.NewIOError("read", path, err)
	}

	var view any
	switch kind {
	case asset.KindModel:
		m, err := model.Decode(data, layout)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		view = m
	case asset.KindThing:
		keys, err := loadKeys(e)
		if err != nil {
			return err
		}
		d, err := thing.Decode(data, keys, layout)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		tv := thingView{Kind: kind, Author: d.Author, Name: d.Name, Key: d.Key, Models: d.Models}
		for _, c := range d.Configs {
			tv.Configs = append(tv.Configs, configView{Key: c.Key, Size: len(c.Raw), Hex: c.Hex()})
		}
		view = tv
	case asset.KindSave:
		s, err := save.Decode(data, layout)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		view = s
	}

	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func runList(ctx context.Context, e env, args []string) error {
	fs := subFlags("list")
	kindName := fs.String("kind", "", "only list assets of this kind (model, thing or save)")
	if err := fs.Parse(args); err != nil {
		return &usageError{msg: err.Error()}
	}
	var kind asset.Kind
	if *kindName != "" {
		var err error
		if kind, err = asset.ParseKind(*kindName); err != nil {
			return usagef("%v", err)
		}
	}
	if e.cfg.IndexDB == "" {
		return usagef("index_db is not configured")
	}
	idx, err := index.OpenSQLite(e.cfg.IndexDB)
	if err != nil {
		return err
	}
	defer idx.Close()

	recs, err := idx.Assets(ctx, kind)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tSIZE\tLAYOUT\tBUILT\tDIGEST")
	for _, r := range recs {
		digest := r.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Kind, r.Name, humanize.Bytes(uint64(r.Size)), r.Layout, humanize.Time(r.BuiltAt), digest)
	}
	return tw.Flush()
}

func runKeys(e env, args []string) error {
	if len(args) != 0 {
		return usagef("usage: assetc keys")
	}
	keys, err := loadKeys(e)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for i, n := range keys.Names() {
		fmt.Fprintf(tw, "%d\t%s\n", i, n)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "digest %s (%d keys)\n", keys.Digest(), keys.Len())
	return nil
}

func runJournal(e env, args []string) error {
	fs := subFlags("journal")
	onlyErrors := fs.Bool("errors", false, "only show failed builds")
	if err := fs.Parse(args); err != nil {
		return &usageError{msg: err.Error()}
	}
	if e.cfg.JournalDir == "" {
		return usagef("journal_dir is not configured")
	}
	entries, err := journal.ReadDir(e.cfg.JournalDir)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tKIND\tNAME\tRESULT")
	for _, en := range entries {
		if *onlyErrors && en.Error == "" {
			continue
		}
		result := humanize.Bytes(uint64(en.Bytes))
		if en.Error != "" {
			result = en.Error
		}
		run := en.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", en.Time.Local().Format(time.DateTime), run, en.Kind, en.Name, result)
	}
	return tw.Flush()
}
