package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// cacheFile is the on-disk snapshot format, also used for the generated
// fallback.
type cacheFile struct {
	Source  Tier      `json:"source"`
	BuiltAt time.Time `json:"builtAt"`
	Entries []Entry   `json:"entries"`
}

// SaveEntries writes entries to path atomically (temp file + rename).
func SaveEntries(path string, source Tier, builtAt time.Time, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(cacheFile{Source: source, BuiltAt: builtAt.UTC(), Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadEntries reads a snapshot written by SaveEntries.
func LoadEntries(path string) ([]Entry, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: decode cache %s: %v", ErrSourceUnavailable, path, err)
	}
	return cf.Entries, cf.BuiltAt, nil
}
