package keytable

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cityforge.dev/internal/asset"
)

func TestBuiltinIndices(t *testing.T) {
	tab := Builtin()
	if tab.Len() != 18 {
		t.Fatalf("Len=%d, want 18", tab.Len())
	}
	i, ok := tab.Index("thing_main_model")
	if !ok || i != 0 {
		t.Fatalf("thing_main_model=%d,%v", i, ok)
	}
	i, ok = tab.Index("thing_pylon_repeat")
	if !ok || i != 17 {
		t.Fatalf("thing_pylon_repeat=%d,%v", i, ok)
	}
	if _, ok := tab.Index("thing_color"); ok {
		t.Fatalf("unexpected key")
	}
	if n, ok := tab.Name(13); !ok || n != "thing_footer_model" {
		t.Fatalf("Name(13)=%q", n)
	}
	if _, ok := tab.Name(18); ok {
		t.Fatalf("Name(18) should be out of range")
	}
	if len(tab.Digest()) != 64 {
		t.Fatalf("digest=%q", tab.Digest())
	}
}

func TestNamesIsACopy(t *testing.T) {
	tab := Builtin()
	names := tab.Names()
	names[0] = "mutated"
	if n, _ := tab.Name(0); n != "thing_main_model" {
		t.Fatalf("table mutated through Names: %q", n)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	if _, err := New([]string{"a", "b", "a"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestLoadAppendOnly(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "keys.yaml")
	body := "keys:\n"
	for _, n := range builtin {
		body += "  - " + n + "\n"
	}
	body += "  - thing_light_radius\n"
	if err := os.WriteFile(ok, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tab, err := Load(ok)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if i, _ := tab.Index("thing_light_radius"); i != 18 {
		t.Fatalf("appended key index=%d, want 18", i)
	}
	if tab.Digest() == Builtin().Digest() {
		t.Fatalf("digest should change when keys are appended")
	}

	bad := filepath.Join(dir, "reordered.yaml")
	if err := os.WriteFile(bad, []byte("keys:\n  - thing_base_x_size\n  - thing_main_model\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); !errors.Is(err, asset.ErrKeyTableNotAppendOnly) {
		t.Fatalf("Load reordered err=%v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !asset.IsIO(err) {
		t.Fatalf("Load missing err=%v, want IOError", err)
	}
}

func TestExtends(t *testing.T) {
	tab, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tab.Extends([]string{"a", "b"}); err != nil {
		t.Fatalf("prefix rejected: %v", err)
	}
	if err := tab.Extends([]string{"a", "c"}); !errors.Is(err, asset.ErrKeyTableNotAppendOnly) {
		t.Fatalf("changed index err=%v", err)
	}
	if err := tab.Extends([]string{"a", "b", "c", "d"}); !errors.Is(err, asset.ErrKeyTableNotAppendOnly) {
		t.Fatalf("shrunk table err=%v", err)
	}
}
