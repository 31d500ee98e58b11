// Package store persists the current animation under the runtime dir
// so it survives restarts. Writes go through a temp file and rename so
// a reader never sees a half-written GIF.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	currentName = "ledmatrix_current.gif"
	payloadName = "last_payload.bin"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SaveCurrent records both the raw payload (kept for debugging) and
// the canonical current GIF.
func (s *Store) SaveCurrent(data []byte) error {
	if err := s.writeAtomic(payloadName, data); err != nil {
		return err
	}
	return s.writeAtomic(currentName, data)
}

// LoadCurrent returns the persisted GIF bytes, or os.ErrNotExist when
// nothing has been saved yet.
func (s *Store) LoadCurrent() ([]byte, error) {
	return os.ReadFile(s.CurrentPath())
}

func (s *Store) CurrentPath() string {
	return filepath.Join(s.dir, currentName)
}

func (s *Store) writeAtomic(name string, data []byte) error {
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
