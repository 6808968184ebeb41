// Package atomicfile writes files so that readers only ever see the old
// contents or the complete new contents.
package atomicfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"cityforge.dev/internal/asset"
)

// WriteFunc streams the new contents of path through fn. The data goes to a
// temp file in the same directory which is synced, closed and renamed over
// path. If fn or any file operation fails the temp file is removed and path
// is left as it was.
func WriteFunc(path string, perm os.FileMode, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return asset.NewIOError("mkdir", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return asset.NewIOError("create", path, err)
	}
	tmp := f.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		_ = os.Remove(tmp)
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return asset.NewIOError("write", path, err)
	}
	if err := f.Chmod(perm); err != nil {
		return asset.NewIOError("chmod", path, err)
	}
	if err := f.Sync(); err != nil {
		return asset.NewIOError("sync", path, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return asset.NewIOError("close", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return asset.NewIOError("rename", path, err)
	}
	return nil
}

// Write replaces path with data.
func Write(path string, data []byte) error {
	return WriteFunc(path, 0o644, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return asset.NewIOError("write", path, err)
		}
		return nil
	})
}
