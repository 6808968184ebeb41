// Package journal appends one compressed JSON line per build attempt.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"cityforge.dev/internal/asset"
)

// JSONLZstdWriter writes JSON lines into hour-rotated zstd files named
// {prefix}-{yyyy-mm-dd-hh}.jsonl.zst. Every Write ends a zstd block, so a
// reader sees whole lines while the file is still open.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu  sync.Mutex
	seg *segment
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

// segment is the open file for one hour.
type segment struct {
	hour string
	path string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
	je   *json.Encoder
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, asset.NewIOError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, asset.NewIOError("open", path, err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	buf := bufio.NewWriterSize(zw, 16*1024)
	return &segment{hour: hour, path: path, f: f, zw: zw, buf: buf, je: json.NewEncoder(buf)}, nil
}

func (s *segment) append(v any) error {
	if err := s.je.Encode(v); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return asset.NewIOError("write", s.path, err)
	}
	if err := s.zw.Flush(); err != nil {
		return asset.NewIOError("write", s.path, err)
	}
	return nil
}

func (s *segment) close() error {
	errs := []error{s.buf.Flush(), s.zw.Close()}
	if err := s.f.Close(); err != nil {
		errs = append(errs, asset.NewIOError("close", s.path, err))
	}
	return errors.Join(errs...)
}

// Path returns the file currently being appended to, or "" before the first
// Write and after Close.
func (w *JSONLZstdWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seg == nil {
		return ""
	}
	return w.seg.path
}

// Write appends v as one line, switching files when the hour changes.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if w.seg == nil || w.seg.hour != hour {
		if err := w.closeSegment(); err != nil {
			return err
		}
		seg, err := openSegment(filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour)), hour)
		if err != nil {
			return err
		}
		w.seg = seg
	}
	return w.seg.append(v)
}

// Close finishes the current file. The writer may be used again afterwards;
// the next Write appends a new frame to the hour's file.
func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeSegment()
}

func (w *JSONLZstdWriter) closeSegment() error {
	if w.seg == nil {
		return nil
	}
	err := w.seg.close()
	w.seg = nil
	return err
}

// Entry is one build attempt. Error is empty on success.
type Entry struct {
	RunID  string     `json:"run_id"`
	Time   time.Time  `json:"time"`
	Kind   asset.Kind `json:"kind"`
	Name   string     `json:"name"`
	Input  string     `json:"input,omitempty"`
	Output string     `json:"output,omitempty"`
	Bytes  int        `json:"bytes,omitempty"`
	Digest string     `json:"digest,omitempty"`
	Layout string     `json:"layout,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// BuildLogger stamps entries with a per-process run ID.
type BuildLogger struct {
	w     *JSONLZstdWriter
	runID string
}

func NewBuildLogger(dir string) *BuildLogger {
	return &BuildLogger{w: NewJSONLZstdWriter(dir, "builds"), runID: uuid.NewString()}
}

func (l *BuildLogger) RunID() string { return l.runID }

func (l *BuildLogger) WriteBuild(e Entry) error {
	if l == nil {
		return nil
	}
	e.RunID = l.runID
	if e.Time.IsZero() {
		e.Time = l.w.now().UTC()
	}
	return l.w.Write(e)
}

func (l *BuildLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.w.Close()
}
