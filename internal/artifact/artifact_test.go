package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "decks"))
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(" ")
	require.EqualError(t, err, "artifact: directory must not be empty")
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestPersistAndRelease(t *testing.T) {
	m := newManager(t)

	h, err := m.Persist("job-1", "42", []byte("deck"))
	require.NoError(t, err)
	require.Equal(t, "deck_42_job-1.pptx", h.Name)
	require.Equal(t, int64(4), h.Size)
	require.FileExists(t, h.Path)

	require.NoError(t, h.Release())
	require.NoFileExists(t, h.Path)
	require.NoError(t, h.Release())
}

func TestRelease_AlreadyMissing(t *testing.T) {
	m := newManager(t)
	h, err := m.Persist("job-2", "7", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(h.Path))
	require.NoError(t, h.Release())
}

func TestRelease_Concurrent(t *testing.T) {
	m := newManager(t)
	h, err := m.Persist("job-3", "7", []byte("x"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Release()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoFileExists(t, h.Path)
}

func TestPersist_Exclusive(t *testing.T) {
	m := newManager(t)
	_, err := m.Persist("same", "1", []byte("a"))
	require.NoError(t, err)

	_, err = m.Persist("same", "1", []byte("b"))
	require.Error(t, err)
	require.True(t, errors.Is(err, fs.ErrExist))
}

func TestPersist_SanitizesName(t *testing.T) {
	m := newManager(t)
	h, err := m.Persist("../../etc/passwd", "a/b", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, m.Dir(), filepath.Dir(h.Path))
	require.Equal(t, "deck_ab_etcpasswd.pptx", h.Name)
}

func TestPersist_EmptyID(t *testing.T) {
	m := newManager(t)
	_, err := m.Persist("", "1", nil)
	require.Error(t, err)
}

func TestSweep(t *testing.T) {
	m := newManager(t)
	old, err := m.Persist("old", "1", []byte("x"))
	require.NoError(t, err)
	fresh, err := m.Persist("fresh", "1", []byte("x"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(m.Dir(), "notes.txt"), past, past))

	removed, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoFileExists(t, old.Path)
	require.FileExists(t, fresh.Path)
	require.FileExists(t, filepath.Join(m.Dir(), "notes.txt"))
}

func TestSweep_MissingDir(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	removed, err := m.Sweep(time.Minute)
	require.NoError(t, err)
	require.Zero(t, removed)
}
