package index

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/keytable"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestSQLiteIndex_RecordAsset(t *testing.T) {
	ctx := context.Background()
	idx, path := openTemp(t)

	built := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	recs := []AssetRecord{
		{Kind: asset.KindThing, Name: "jarrett-lamp", Path: "/out/jarrett-lamp.thing", Size: 120, Digest: "aa", Layout: "legacy", KeyTableDigest: "kt", BuiltAt: built},
		{Kind: asset.KindModel, Name: "jarrett-pole", Path: "/out/jarrett-pole.model", Size: 483, Digest: "bb", Layout: "legacy", BuiltAt: built},
	}
	for _, r := range recs {
		if err := idx.RecordAsset(ctx, r); err != nil {
			t.Fatalf("RecordAsset: %v", err)
		}
	}
	// Rebuild replaces the row.
	recs[1].Size = 490
	if err := idx.RecordAsset(ctx, recs[1]); err != nil {
		t.Fatalf("RecordAsset: %v", err)
	}

	got, ok, err := idx.Asset(ctx, asset.KindModel, "jarrett-pole")
	if err != nil || !ok {
		t.Fatalf("Asset: ok=%v err=%v", ok, err)
	}
	if got.Size != 490 || got.Digest != "bb" || !got.BuiltAt.Equal(built) || got.KeyTableDigest != "" {
		t.Fatalf("record mismatch: %+v", got)
	}
	if _, ok, err := idx.Asset(ctx, asset.KindSave, "park"); ok || err != nil {
		t.Fatalf("missing asset: ok=%v err=%v", ok, err)
	}

	all, err := idx.Assets(ctx, "")
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(all) != 2 || all[0].Kind != asset.KindModel || all[1].KeyTableDigest != "kt" {
		t.Fatalf("Assets=%+v", all)
	}
	things, err := idx.Assets(ctx, asset.KindThing)
	if err != nil || len(things) != 1 {
		t.Fatalf("Assets(thing)=%+v err=%v", things, err)
	}

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema_version=%q", v)
	}
}

func TestSQLiteIndex_KeyTableAppendOnly(t *testing.T) {
	ctx := context.Background()
	idx, _ := openTemp(t)

	if _, ok, err := idx.LastKeyTable(ctx); ok || err != nil {
		t.Fatalf("empty history: ok=%v err=%v", ok, err)
	}

	base := keytable.Builtin()
	if err := idx.RecordKeyTable(ctx, base); err != nil {
		t.Fatalf("RecordKeyTable: %v", err)
	}
	if err := idx.RecordKeyTable(ctx, base); err != nil {
		t.Fatalf("RecordKeyTable again: %v", err)
	}

	grown, err := keytable.New(append(base.Names(), "thing_light_radius"))
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.RecordKeyTable(ctx, grown); err != nil {
		t.Fatalf("RecordKeyTable grown: %v", err)
	}
	last, ok, err := idx.LastKeyTable(ctx)
	if err != nil || !ok {
		t.Fatalf("LastKeyTable: ok=%v err=%v", ok, err)
	}
	if last.Digest != grown.Digest() || len(last.Names) != base.Len()+1 || last.Seq != 2 {
		t.Fatalf("last=%+v", last)
	}

	names := base.Names()
	names[0], names[1] = names[1], names[0]
	reordered, err := keytable.New(names)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.RecordKeyTable(ctx, reordered); !errors.Is(err, asset.ErrKeyTableNotAppendOnly) {
		t.Fatalf("reordered err=%v", err)
	}
	// Shrinking back to the builtin table is rejected too.
	if err := idx.RecordKeyTable(ctx, base); !errors.Is(err, asset.ErrKeyTableNotAppendOnly) {
		t.Fatalf("shrunk err=%v", err)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	ctx := context.Background()
	var idx *SQLiteIndex

	if err := idx.RecordAsset(ctx, AssetRecord{Kind: asset.KindModel, Name: "jarrett-pole"}); err != nil {
		t.Fatalf("RecordAsset: %v", err)
	}
	if _, ok, err := idx.Asset(ctx, asset.KindModel, "jarrett-pole"); ok || err != nil {
		t.Fatalf("Asset ok=%v err=%v", ok, err)
	}
	if recs, err := idx.Assets(ctx, ""); recs != nil || err != nil {
		t.Fatalf("Assets=%v err=%v", recs, err)
	}
	if err := idx.RecordKeyTable(ctx, keytable.Builtin()); err != nil {
		t.Fatalf("RecordKeyTable: %v", err)
	}
	if _, ok, err := idx.LastKeyTable(ctx); ok || err != nil {
		t.Fatalf("LastKeyTable ok=%v err=%v", ok, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
