// Package archiver coordinates crawl runs with archive persistence.
package archiver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/assets"
	"github.com/webvault/webvault/internal/engine"
	"github.com/webvault/webvault/internal/metrics"
	"github.com/webvault/webvault/internal/store"
)

// Service executes archive creation end to end and fronts the store for
// the routing layer. Each Start call is one crawl run with its own
// visited set; concurrent calls share nothing but the store index.
type Service struct {
	store  *store.Store
	engine *engine.Engine
	ids    archive.IDGenerator
	clock  archive.Clock
	budget time.Duration
	logger *zap.Logger
}

// New builds a Service. budget of zero disables the whole-crawl deadline.
func New(
	st *store.Store,
	eng *engine.Engine,
	ids archive.IDGenerator,
	clock archive.Clock,
	budget time.Duration,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		engine: eng,
		ids:    ids,
		clock:  clock,
		budget: budget,
		logger: logger,
	}
}

// Start archives rawURL synchronously and returns the completed Archive.
// A malformed root URL fails with archive.ErrInvalidURL before any I/O.
// Storage failures leave no partially written archive behind.
func (s *Service) Start(ctx context.Context, rawURL string) (archive.Archive, error) {
	rootURL, err := parseRootURL(rawURL)
	if err != nil {
		return archive.Archive{}, err
	}

	id, err := s.ids.NewID()
	if err != nil {
		return archive.Archive{}, fmt.Errorf("generate archive id: %w", err)
	}

	dir, err := assets.NewDir(s.store.ArchiveDir(id))
	if err != nil {
		metrics.ObserveArchive("failed")
		return archive.Archive{}, err
	}

	runCtx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	s.logger.Info("crawl started", zap.String("id", id), zap.String("url", rootURL))
	result, err := s.engine.Run(runCtx, rootURL, dir)
	if err != nil {
		s.removeTree(id)
		metrics.ObserveArchive("failed")
		return archive.Archive{}, fmt.Errorf("crawl %s: %w", rootURL, err)
	}

	a := archive.Archive{
		ID:             id,
		SourceURL:      rootURL,
		CreatedAt:      s.clock.Now(),
		Status:         archive.StatusCompleted,
		Pages:          result.Pages,
		Assets:         result.Assets,
		TotalSizeBytes: archive.TotalSize(result.Pages, result.Assets),
	}

	if err := s.store.Persist(a); err != nil {
		s.removeTree(id)
		metrics.ObserveArchive("failed")
		return archive.Archive{}, fmt.Errorf("persist archive: %w", err)
	}

	metrics.ObserveArchive("completed")
	return a, nil
}

// List returns all archives, most recent first.
func (s *Service) List() []archive.Archive {
	return s.store.List()
}

// Get returns the archive for id or archive.ErrNotFound.
func (s *Service) Get(id string) (archive.Archive, error) {
	return s.store.Get(id)
}

// PageContent returns stored page bytes or archive.ErrNotFound.
func (s *Service) PageContent(id, filename string) ([]byte, error) {
	return s.store.PageContent(id, filename)
}

// Delete removes an archive and its directory tree.
func (s *Service) Delete(id string) error {
	return s.store.Delete(id)
}

func (s *Service) removeTree(id string) {
	if err := os.RemoveAll(s.store.ArchiveDir(id)); err != nil {
		s.logger.Error("cleanup of partial archive failed",
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// parseRootURL validates the crawl entry point: absolute http(s) with a
// host.
func parseRootURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %q", archive.ErrInvalidURL, rawURL)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", archive.ErrInvalidURL, rawURL)
	}
	return parsed.String(), nil
}
