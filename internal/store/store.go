// Package store persists completed archives and serves retrieval.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/assets"
)

// metadataFilename is the serialized snapshot written into each archive
// directory.
const metadataFilename = "metadata.json"

// Store holds the in-memory archive index, most recent first, backed by a
// directory tree and an optional catalog. An archive becomes visible only
// after it is fully persisted.
type Store struct {
	baseDir string
	catalog *Catalog
	logger  *zap.Logger

	mu    sync.RWMutex
	byID  map[string]archive.Archive
	order []string // archive ids, most recent first
}

// New creates the base directory if absent and, when a catalog is
// supplied, seeds the index from it.
func New(baseDir string, catalog *Catalog, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive base dir: %w", err)
	}

	s := &Store{
		baseDir: baseDir,
		catalog: catalog,
		logger:  logger,
		byID:    make(map[string]archive.Archive),
	}

	if catalog != nil {
		existing, err := catalog.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, a := range existing {
			s.byID[a.ID] = a
			s.order = append(s.order, a.ID)
		}
		if len(existing) > 0 {
			logger.Info("archive index restored", zap.Int("count", len(existing)))
		}
	}

	return s, nil
}

// ArchiveDir returns the directory tree root for an archive id.
func (s *Store) ArchiveDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// Persist writes the metadata snapshot, records the archive in the
// catalog, and inserts it at the head of the index. Insertion is atomic
// with respect to concurrent creations.
func (s *Store) Persist(a archive.Archive) error {
	snapshot, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	metaPath := filepath.Join(s.ArchiveDir(a.ID), metadataFilename)
	if err := os.WriteFile(metaPath, snapshot, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if s.catalog != nil {
		if err := s.catalog.Save(a); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.byID[a.ID] = a
	s.order = append([]string{a.ID}, s.order...)
	s.mu.Unlock()

	s.logger.Info("archive persisted",
		zap.String("id", a.ID),
		zap.String("url", a.SourceURL),
		zap.Int("pages", len(a.Pages)),
		zap.Int64("bytes", a.TotalSizeBytes),
	)
	return nil
}

// Get returns the archive for id or archive.ErrNotFound.
func (s *Store) Get(id string) (archive.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return archive.Archive{}, archive.ErrNotFound
	}
	return a, nil
}

// List returns all archives, most recent first.
func (s *Store) List() []archive.Archive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]archive.Archive, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// PageContent returns the stored bytes of one captured page. The filename
// must already be in sanitized form; anything else cannot name a stored
// page and maps to ErrNotFound.
func (s *Store) PageContent(id, filename string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	if filename == "" || assets.Sanitize(filename) != filename {
		return nil, archive.ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.ArchiveDir(id), "pages", filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, archive.ErrNotFound
		}
		return nil, fmt.Errorf("read page %s/%s: %w", id, filename, err)
	}
	return data, nil
}

// Delete removes the archive's backing directory tree, catalog row, and
// index entry. An already-absent directory is tolerated; an unknown id
// returns archive.ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return archive.ErrNotFound
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if err := os.RemoveAll(s.ArchiveDir(id)); err != nil {
		return fmt.Errorf("remove archive dir %s: %w", id, err)
	}
	if s.catalog != nil {
		if err := s.catalog.Delete(id); err != nil {
			return err
		}
	}

	s.logger.Info("archive deleted", zap.String("id", id))
	return nil
}
