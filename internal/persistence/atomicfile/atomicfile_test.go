package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cityforge.dev/internal/asset"
)

func TestWriteCreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "jarrett-pole.model")

	if err := Write(path, []byte("one")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(path, []byte("two")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("contents=%q, want two", b)
	}
	assertNoTemp(t, filepath.Dir(path))
}

func TestFailedWriteKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lamp.thing")
	if err := Write(path, []byte("previous")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	boom := errors.New("boom")
	err := WriteFunc(path, 0o644, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "previous" {
		t.Fatalf("contents=%q, want previous", b)
	}
	assertNoTemp(t, dir)
}

func TestFailedFirstWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "park.city")
	err := WriteFunc(path, 0o644, func(io.Writer) error { return asset.ErrSectionTooLarge })
	if !errors.Is(err, asset.ErrSectionTooLarge) {
		t.Fatalf("err=%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("stat err=%v, want not exist", err)
	}
	assertNoTemp(t, dir)
}

func TestUnwritableDirIsIOError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := Write(filepath.Join(blocker, "sub", "x.model"), []byte("x"))
	if !asset.IsIO(err) {
		t.Fatalf("err=%v, want IOError", err)
	}
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range ents {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
