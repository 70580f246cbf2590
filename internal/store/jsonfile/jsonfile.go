// Package jsonfile implements store.Store on top of a single JSON file that
// holds an array of ICE mails.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rmed/simpleice/internal/domain"
	"github.com/rmed/simpleice/internal/store"
)

// Store reads and writes the ICE mail collection at a fixed path.
type Store struct {
	path string
}

var _ store.Store = (*Store)(nil)

// New returns a Store backed by the file at path. The file does not need to
// exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection. A missing file yields an empty collection.
func (s *Store) Load(ctx context.Context) (store.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.Collection{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %w", store.ErrIO, s.path, err)
	}

	c, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrCorrupt, s.path, err)
	}
	return c, nil
}

// Save replaces the file with c. The data is written to a temporary file in
// the same directory and renamed over the target, so readers only ever see a
// complete snapshot.
func (s *Store) Save(ctx context.Context, c store.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(c)
	if err != nil {
		return fmt.Errorf("%w: failed to encode collection: %w", store.ErrIO, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %w", store.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", store.ErrIO, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", store.ErrIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %w", store.ErrIO, tmpName, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("%w: failed to chmod %s: %w", store.ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", store.ErrIO, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		committed = true
		return fmt.Errorf("%w: failed to replace %s: %w", store.ErrIO, s.path, err)
	}
	committed = true
	return nil
}

func decode(data []byte) (store.Collection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return store.Collection{}, nil
	}
	var c store.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = store.Collection{}
	}
	ids := make(map[string]bool, len(c))
	names := make(map[string]bool, len(c))
	for i := range c {
		m := &c[i]
		m.Normalize()
		if !m.Status.Valid() {
			return nil, fmt.Errorf("record %d: unknown status %q", i, m.Status)
		}
		if m.Status == domain.StatusActive && m.TriggerAt == nil {
			return nil, fmt.Errorf("record %d (%q): active without trigger_at", i, m.Name)
		}
		if ids[m.ID] {
			return nil, fmt.Errorf("record %d: duplicate id %q", i, m.ID)
		}
		if names[m.Name] {
			return nil, fmt.Errorf("record %d: duplicate name %q", i, m.Name)
		}
		ids[m.ID] = true
		names[m.Name] = true
	}
	return c, nil
}

func encode(c store.Collection) ([]byte, error) {
	if c == nil {
		c = store.Collection{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
