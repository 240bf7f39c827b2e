// Package fsutil provides the crash-safe file primitives shared by every
// persisted record: atomic replace for snapshots and JSON-lines append for logs.
//
// A write either fully replaces the previous content or leaves it untouched;
// a crash between read and write never leaves a half-written file behind.
package fsutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	overseererrors "github.com/mrz1836/overseer/internal/errors"
)

// Permissions used for all persisted state.
const (
	DirPerm  os.FileMode = 0o750
	FilePerm os.FileMode = 0o600
)

// maxLineSize bounds a single JSON-lines entry when reading.
const maxLineSize = 4 * 1024 * 1024

// AtomicWrite writes data to path using a temp file in the same directory,
// fsync, and rename. The file mode of the result is perm.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return AtomicWrite(path, data, FilePerm)
}

// ReadJSON decodes the JSON file at path into v. It reports found=false with a
// nil error when the file does not exist; undecodable content is ErrCorruptState.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: paths are built from the configured state directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%s: %w: %w", filepath.Base(path), overseererrors.ErrCorruptState, err)
	}
	return true, nil
}

// AppendJSONLine marshals v and appends it as one line to path, creating the
// file if needed. The write is synced before returning.
func AppendJSONLine(ctx context.Context, path string, v any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), DirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	//nolint:gosec // G304: paths are built from the configured state directory
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FilePerm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	// A torn final line from an earlier crash must not swallow this entry.
	if info, statErr := f.Stat(); statErr == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, readErr := f.ReadAt(last, info.Size()-1); readErr == nil && last[0] != '\n' {
			data = append([]byte{'\n'}, data...)
		}
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}

// ReadJSONLines decodes every line of path with decode. A missing file yields
// no calls. A torn final line (from a crash mid-append) is skipped; corrupt
// lines elsewhere are skipped too and counted in the returned value.
func ReadJSONLines(path string, decode func(line []byte) error) (skipped int, err error) {
	f, err := os.Open(path) //nolint:gosec // G304: paths are built from the configured state directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if decodeErr := decode(line); decodeErr != nil {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return skipped, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return skipped, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
