// Package assets downloads page dependencies into an archive directory.
package assets

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
)

// hashPrefixLen is how much of the URL digest gets spliced into a
// disambiguated filename.
const hashPrefixLen = 8

// Result describes one successfully stored asset.
type Result struct {
	LocalPath   string
	ContentType string
	SizeBytes   int64
}

// Downloader fetches one referenced resource and writes it under a
// category subdirectory of the archive. Failures are returned to be
// recorded, never to abort the caller.
type Downloader struct {
	fetcher archive.Fetcher
	hasher  archive.Hasher
	logger  *zap.Logger
}

// NewDownloader builds a Downloader.
func NewDownloader(fetcher archive.Fetcher, hasher archive.Hasher, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher: fetcher,
		hasher:  hasher,
		logger:  logger,
	}
}

// Download fetches rawURL and persists it under the category subdirectory
// of dir, returning the stored location or a *archive.DownloadError.
func (dl *Downloader) Download(
	ctx context.Context,
	rawURL string,
	category archive.AssetCategory,
	dir *Dir,
) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, &archive.DownloadError{URL: rawURL, Err: err}
	}

	fetched, err := dl.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Result{}, &archive.DownloadError{URL: rawURL, Err: err}
	}

	digest, err := dl.hasher.Hash([]byte(rawURL))
	if err != nil {
		return Result{}, &archive.DownloadError{URL: rawURL, Err: err}
	}

	rel := dir.Reserve(category.Subdir(), FilenameFromURL(parsed), rawURL, digest[:hashPrefixLen])
	if err := dir.Write(rel, fetched.Body); err != nil {
		return Result{}, &archive.DownloadError{URL: rawURL, Err: err}
	}

	dl.logger.Debug("asset stored",
		zap.String("url", rawURL),
		zap.String("path", rel),
		zap.Int("bytes", len(fetched.Body)),
	)

	return Result{
		LocalPath:   rel,
		ContentType: fetched.ContentType,
		SizeBytes:   int64(len(fetched.Body)),
	}, nil
}
