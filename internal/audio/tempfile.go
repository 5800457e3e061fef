package audio

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// TempFile is a scratch file handed to an inference collaborator by path.
// Release removes it and is safe to call more than once.
type TempFile struct {
	path string
	once sync.Once
}

// WriteTemp writes data to a new file in dir (os.TempDir when empty).
func WriteTemp(dir, pattern string, data []byte) (*TempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &TempFile{path: f.Name()}, nil
}

// Path returns the file location.
func (t *TempFile) Path() string { return t.path }

// Release deletes the file.
func (t *TempFile) Release() {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temp file", "path", t.path, "error", err)
		}
	})
}
