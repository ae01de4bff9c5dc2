// Package cache persists the migration set between builds.
//
// The cache is a single JSON object mapping "<owner>#<field>" (intermediary
// names) to the corrected intermediary descriptor:
//
//	{"net/x/C#f_1": "Lnet/x/Bar;"}
//
// Conventions:
//   - Keys are written sorted, so the file is a function of the migration set.
//   - Writes go to a temporary sibling and are renamed into place; readers
//     never observe a partially-written cache.
//   - A file that cannot be decoded is reported as ErrCorrupt; it is never
//     silently discarded.
package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"

	"field-migrator/internal/descriptor"
	"field-migrator/internal/validate"
)

// FileName is the cache file name inside the cache directory.
const FileName = "migrated-fields.json"

// ErrCorrupt marks a cache file that exists but cannot be used.
var ErrCorrupt = errors.Base("migrated field cache is corrupt")

// Path returns the cache file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the cache at path. A missing file returns ok=false and no error
// so callers can treat it as "not generated yet".
func Load(path string) (entries []descriptor.Entry, ok bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Errorf("read migrated field cache %s: %w", path, err)
	}
	var raw map[string]string
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return nil, false, corrupt(path, err)
	}
	if dec.More() {
		return nil, false, corrupt(path, errors.New("trailing data after JSON object"))
	}
	if raw == nil {
		return nil, false, corrupt(path, errors.New("cache is null, want a JSON object"))
	}
	entries, err = validate.Migrations(raw)
	if err != nil {
		return nil, false, corrupt(path, err)
	}
	return entries, true, nil
}

func corrupt(path string, cause error) error {
	return errors.Errorf("%w: %s (delete the file and rebuild to regenerate it): %w", ErrCorrupt, path, cause)
}

// Encode renders entries as the cache JSON object with sorted keys.
func Encode(entries []descriptor.Entry) ([]byte, error) {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key.String()] = e.Desc
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// Save writes entries atomically to path.
func Save(path string, entries []descriptor.Entry) error {
	b, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(path, b); err != nil {
		return errors.Errorf("write migrated field cache %s: %w", path, err)
	}
	return nil
}

// Clear removes the cache file. Safe to call when it does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("delete migrated field cache %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data into a temporary file within the same
// directory, syncs it, then renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	tmp, f, err := createTempFile(dir, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp) // best-effort cleanup
		return errors.WithStack(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.WithStack(err)
	}
	return nil
}

// createTempFile creates ".tmp-<base>-<rand>" in dir, returning its path and
// an *os.File ready for writing. Caller is responsible for closing it.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	return f.Name(), f, nil
}
