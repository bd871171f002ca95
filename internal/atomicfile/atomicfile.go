// Package atomicfile persists JSON documents so that a concurrent
// reader always observes either the fully-written previous state or the
// fully-written new state, never a torn write.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON serializes v as indented UTF-8 JSON and publishes it at path
// via a temp-file-then-rename sequence: create parent directories, write
// a uniquely-named sibling temp file, flush and fsync it, then rename it
// over path. The temp file is removed on any failure; it never survives
// a clean return.
func WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create parent dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp_*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, v); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename %s to %s: %w", tmpPath, path, err)
	}

	return nil
}

func writeAndSync(f *os.File, v any) error {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("atomicfile: encode document: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("atomicfile: fsync temp file: %w", err)
	}
	return f.Close()
}

// ReadJSON decodes the document at path into v. It reports present=false
// with a nil error when path does not exist; callers must not treat a
// missing file as an error.
func ReadJSON(path string, v any) (present bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("atomicfile: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("atomicfile: decode %s: %w", path, err)
	}
	return true, nil
}
