// Package index keeps a SQLite catalog of built assets and of every key table
// that has been used to encode things.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"cityforge.dev/internal/asset"
	"cityforge.dev/internal/asset/keytable"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db   *sql.DB
	once sync.Once
}

// AssetRecord describes one built output file.
type AssetRecord struct {
	Kind           asset.Kind `json:"kind"`
	Name           string     `json:"name"`
	Path           string     `json:"path"`
	Size           int64      `json:"size"`
	Digest         string     `json:"digest"`
	Version        int        `json:"version"`
	Layout         string     `json:"layout"`
	KeyTableDigest string     `json:"key_table_digest,omitempty"`
	BuiltAt        time.Time  `json:"built_at"`
}

// KeyTableRecord is one entry of the key table history.
type KeyTableRecord struct {
	Seq        int64
	Digest     string
	Names      []string
	RecordedAt time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, asset.NewIOError("mkdir", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS key_tables (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			digest TEXT NOT NULL UNIQUE,
			names_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS assets (
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			digest TEXT NOT NULL,
			version INTEGER NOT NULL,
			layout TEXT NOT NULL,
			key_table_digest TEXT,
			built_at TEXT NOT NULL,
			PRIMARY KEY (kind, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_built_at ON assets(built_at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database. A nil index, like every other method, is a
// no-op so callers can run without one.
func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// RecordAsset inserts or replaces the row for (kind, name).
func (s *SQLiteIndex) RecordAsset(ctx context.Context, r AssetRecord) error {
	if s == nil {
		return nil
	}
	if r.BuiltAt.IsZero() {
		r.BuiltAt = time.Now()
	}
	var keyDigest any
	if r.KeyTableDigest != "" {
		keyDigest = r.KeyTableDigest
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO assets(kind,name,path,size,digest,version,layout,key_table_digest,built_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		string(r.Kind), r.Name, r.Path, r.Size, r.Digest, r.Version, r.Layout, keyDigest,
		r.BuiltAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record asset %s %s: %w", r.Kind, r.Name, err)
	}
	return nil
}

// Asset returns the record for (kind, name). ok is false when none exists.
func (s *SQLiteIndex) Asset(ctx context.Context, kind asset.Kind, name string) (rec AssetRecord, ok bool, err error) {
	if s == nil {
		return rec, false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT kind,name,path,size,digest,version,layout,key_table_digest,built_at FROM assets WHERE kind=? AND name=?`,
		string(kind), name)
	rec, err = scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Assets lists records ordered by kind and name. An empty kind lists all.
func (s *SQLiteIndex) Assets(ctx context.Context, kind asset.Kind) ([]AssetRecord, error) {
	if s == nil {
		return nil, nil
	}
	q := `SELECT kind,name,path,size,digest,version,layout,key_table_digest,built_at FROM assets`
	var args []any
	if kind != "" {
		q += ` WHERE kind=?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY kind, name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssetRecord
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(sc scanner) (AssetRecord, error) {
	var (
		r         AssetRecord
		kind      string
		keyDigest sql.NullString
		builtAt   string
	)
	if err := sc.Scan(&kind, &r.Name, &r.Path, &r.Size, &r.Digest, &r.Version, &r.Layout, &keyDigest, &builtAt); err != nil {
		return r, err
	}
	r.Kind = asset.Kind(kind)
	r.KeyTableDigest = keyDigest.String
	t, err := time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		return r, fmt.Errorf("built_at %q: %w", builtAt, err)
	}
	r.BuiltAt = t
	return r, nil
}

// LastKeyTable returns the most recently recorded key table.
func (s *SQLiteIndex) LastKeyTable(ctx context.Context) (rec KeyTableRecord, ok bool, err error) {
	if s == nil {
		return rec, false, nil
	}
	var (
		names      string
		recordedAt string
	)
	row := s.db.QueryRowContext(ctx, `SELECT seq,digest,names_json,recorded_at FROM key_tables ORDER BY seq DESC LIMIT 1`)
	if err := row.Scan(&rec.Seq, &rec.Digest, &names, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, err
	}
	if err := json.Unmarshal([]byte(names), &rec.Names); err != nil {
		return rec, false, fmt.Errorf("key table %d: %w", rec.Seq, err)
	}
	if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return rec, false, fmt.Errorf("key table %d recorded_at: %w", rec.Seq, err)
	}
	return rec, true, nil
}

// RecordKeyTable checks that t only appends to the last recorded table and
// then records it. Recording the same table again is a no-op.
func (s *SQLiteIndex) RecordKeyTable(ctx context.Context, t *keytable.Table) error {
	if s == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		digest string
		names  string
	)
	err = tx.QueryRowContext(ctx, `SELECT digest,names_json FROM key_tables ORDER BY seq DESC LIMIT 1`).Scan(&digest, &names)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if digest == t.Digest() {
			return nil
		}
		var prev []string
		if err := json.Unmarshal([]byte(names), &prev); err != nil {
			return fmt.Errorf("key table %s: %w", digest, err)
		}
		if err := t.Extends(prev); err != nil {
			return err
		}
	}

	b, err := json.Marshal(t.Names())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO key_tables(digest,names_json,recorded_at) VALUES(?,?,?)`,
		t.Digest(), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}
