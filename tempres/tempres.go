// Package tempres manages scoped temporary files. Every job allocates its
// on-disk inputs and intermediates through a Manager and releases them
// through a Scope, which removes them in reverse order of creation.
package tempres

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/audioscribe/errors"
)

// Manager hands out collision-free paths under one directory.
type Manager struct {
	dir string
}

// NewManager creates a Manager rooted at dir, creating it if needed.
// An empty dir uses the system temp directory.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("tempres: create %s: %w", dir, err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the directory paths are allocated in.
func (m *Manager) Dir() string { return m.dir }

// Acquire returns a handle bound to a fresh path with the given extension.
// The path itself is not created. The extension is sanitized; user-supplied
// file names never become part of the path.
func (m *Manager) Acquire(ext string) *Resource {
	name := uuid.NewString() + sanitizeExt(ext)
	return &Resource{path: filepath.Join(m.dir, name)}
}

// Create acquires a path and opens it for writing.
func (m *Manager) Create(ext string) (*Resource, *os.File, error) {
	r := m.Acquire(ext)
	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("tempres: create %s: %w", r.path, err)
	}
	return r, f, nil
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= 8 {
			break
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "." + strings.ToLower(b.String())
}

// Resource is a handle to one temporary path.
type Resource struct {
	path string

	mu       sync.Mutex
	released bool
}

// Path returns the bound path.
func (r *Resource) Path() string { return r.path }

// Release removes the path if present. It is idempotent: releasing a path
// that was never created or already removed returns nil.
func (r *Resource) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Resource(r.path, err)
	}
	r.released = true
	return nil
}

// Released reports whether Release has completed successfully.
func (r *Resource) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
