package trace

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes the canonical trace to path, replacing any previous file
// atomically, and returns the trace hash.
func WriteFile(path string, t SweepTrace) (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding trace: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating trace dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}
