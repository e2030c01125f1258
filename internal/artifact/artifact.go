// Package artifact owns the on-disk lifetime of rendered decks.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Extension is appended to every artifact file name.
const Extension = ".pptx"

var newUUID = func() string { return uuid.NewString() }

// NewID returns a collision-free job identifier.
func NewID() string { return newUUID() }

// Manager persists artifacts under a single directory.
type Manager struct {
	dir string
	now func() time.Time
}

func NewManager(dir string) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact: directory must not be empty")
	}
	return &Manager{dir: dir, now: time.Now}, nil
}

func (m *Manager) Dir() string { return m.dir }

// Handle is a persisted artifact. Release removes it and may be called any number of times.
type Handle struct {
	Path      string
	Name      string
	CreatedAt time.Time
	Size      int64

	once sync.Once
	err  error
}

// Release deletes the file. A file that is already gone counts as released.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if err := os.Remove(h.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = fmt.Errorf("artifact: remove %s: %w", h.Path, err)
		}
	})
	return h.err
}

// Persist writes data to a new file named after id. The file is created
// exclusively; an existing file with the same name is an error.
func (m *Manager) Persist(id, requesterID string, data []byte) (*Handle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("artifact: id must not be empty")
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure dir: %w", err)
	}

	name := fileName(id, requesterID)
	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", name, err)
	}

	n, werr := f.Write(data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("artifact: write %s: %w", name, werr)
	}

	return &Handle{Path: path, Name: name, CreatedAt: m.now(), Size: int64(n)}, nil
}

// Sweep removes artifacts older than maxAge and returns how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("artifact: read dir: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("artifact: sweep: %w", errors.Join(errs...))
	}
	return removed, nil
}

func fileName(id, requesterID string) string {
	if r := safeSegment(requesterID); r != "" {
		return "deck_" + r + "_" + safeSegment(id) + Extension
	}
	return "deck_" + safeSegment(id) + Extension
}

func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, s)
}
