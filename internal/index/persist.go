package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// snapshotVersion is the on-disk format revision written by PersistTo.
const snapshotVersion = 1

// snapshotFile is the persisted layout of a Memory index.
type snapshotFile struct {
	// Version is the format revision.
	Version int `json:"version"`
	// Dimension is the vector dimension shared by every entry.
	Dimension int `json:"dimension"`
	// Entries holds the pairs in insertion order.
	Entries []snapshotEntry `json:"entries"`
}

// snapshotEntry is one persisted (chunk, vector) pair.
type snapshotEntry struct {
	Text   string    `json:"text"`
	Source string    `json:"source"`
	Page   int       `json:"page"`
	Vector []float32 `json:"vector"`
}

// PersistTo writes the committed entries to path. The file is replaced
// atomically and writers across processes are serialised by a lock file
// next to it.
func (m *Memory) PersistTo(path string) error {
	entries, dim := m.snapshot()

	snap := snapshotFile{
		Version:   snapshotVersion,
		Dimension: dim,
		Entries:   make([]snapshotEntry, len(entries)),
	}
	for i, e := range entries {
		snap.Entries[i] = snapshotEntry{
			Text:   e.chunk.Text,
			Source: e.chunk.Source,
			Page:   e.chunk.Page,
			Vector: e.vector,
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("index: persist: create %s: %w", dir, err)
	}

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("index: persist: lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("index: persist: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := json.NewEncoder(tmp).Encode(&snap); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("index: persist: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("index: persist: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: persist: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("index: persist: rename into %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot written by PersistTo. The file is trusted: there is
// no integrity check beyond structural validation. A missing file returns an
// error wrapping fs.ErrNotExist; unreadable content returns
// rag.ErrCorruptIndex.
func Load(path string) (*Memory, error) {
	// Checked before locking so a missing snapshot leaves no lock file behind.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index: load %s: %w", path, err)
	}
	lock := flock.New(lockPath(path))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("index: load: lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: load %s: %w", path, err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("index: load %s: %w: %w", path, rag.ErrCorruptIndex, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("index: load %s: %w: unsupported version %d", path, rag.ErrCorruptIndex, snap.Version)
	}
	if snap.Dimension < 0 || (len(snap.Entries) > 0 && snap.Dimension == 0) {
		return nil, fmt.Errorf("index: load %s: %w: invalid dimension %d", path, rag.ErrCorruptIndex, snap.Dimension)
	}

	m := NewMemory(path)
	m.dim = snap.Dimension
	m.entries = make([]entry, len(snap.Entries))
	for i, e := range snap.Entries {
		if len(e.Vector) != snap.Dimension {
			return nil, fmt.Errorf("index: load %s: %w: entry %d has dimension %d, want %d",
				path, rag.ErrCorruptIndex, i, len(e.Vector), snap.Dimension)
		}
		m.entries[i] = entry{
			chunk:  rag.Chunk{Text: e.Text, Source: e.Source, Page: e.Page},
			vector: e.Vector,
		}
	}
	return m, nil
}

// Open loads the snapshot at path, starting an empty index when the file
// does not exist. A corrupt snapshot is moved aside to
// "<path>.corrupt-<unix seconds>" and an empty index is returned so the
// namespace can be re-ingested.
func Open(ctx context.Context, path string) (*Memory, error) {
	log := logging.FromContext(ctx)

	m, err := Load(path)
	switch {
	case err == nil:
		log.Info("index: loaded snapshot",
			slog.String("path", path),
			slog.Int("entries", len(m.entries)),
			slog.Int("dimension", m.dim),
		)
		return m, nil

	case errors.Is(err, fs.ErrNotExist):
		log.Info("index: no snapshot found, starting empty", slog.String("path", path))
		return NewMemory(path), nil

	case errors.Is(err, rag.ErrCorruptIndex):
		quarantine := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			return nil, fmt.Errorf("index: quarantine corrupt snapshot: %w", errors.Join(err, renameErr))
		}
		log.Error("index: corrupt snapshot moved aside, starting empty",
			slog.String("path", path),
			slog.String("quarantine", quarantine),
			slog.Any("error", err),
		)
		return NewMemory(path), nil

	default:
		return nil, err
	}
}

// Remove deletes the snapshot at path and its lock file. Missing files are
// not an error.
func Remove(path string) error {
	for _, p := range []string{path, lockPath(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("index: remove %s: %w", p, err)
		}
	}
	return nil
}

// lockPath returns the lock file guarding the snapshot at path.
func lockPath(path string) string {
	return path + ".lock"
}
