// Package archive defines core types shared across subsystems.
package archive

import (
	"context"
	"time"
)

// Status represents the lifecycle state of an archive.
type Status string

// StatusCompleted is the only persisted status: an archive is fully
// populated before it becomes visible, so there is no partial state.
const StatusCompleted Status = "completed"

// AssetCategory classifies a downloaded page dependency.
type AssetCategory string

// Asset categories map one-to-one onto archive subdirectories.
const (
	AssetCSS   AssetCategory = "css"
	AssetJS    AssetCategory = "js"
	AssetImage AssetCategory = "image"
)

// Subdir returns the archive subdirectory for the category.
func (c AssetCategory) Subdir() string {
	if c == AssetImage {
		return "images"
	}
	return string(c)
}

// AssetStatus records the outcome of one asset download.
type AssetStatus string

// Asset download outcomes.
const (
	AssetSuccess AssetStatus = "success"
	AssetFailed  AssetStatus = "failed"
)

// PageRecord is persisted for each captured page. No two records in one
// archive share the same URL.
type PageRecord struct {
	URL           string    `json:"url"`
	LocalFilename string    `json:"local_filename"`
	SizeBytes     int64     `json:"size_bytes"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// AssetRecord is persisted for each referenced asset, successful or not.
// LocalPath is relative to the archive root and empty on failure.
type AssetRecord struct {
	Category    AssetCategory `json:"category"`
	SourceURL   string        `json:"source_url"`
	LocalPath   string        `json:"local_path,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	SizeBytes   int64         `json:"size_bytes"`
	Status      AssetStatus   `json:"status"`
}

// Archive is one completed crawl-and-store run for a root URL. Immutable
// once persisted; deletion removes it entirely.
type Archive struct {
	ID             string        `json:"id"`
	SourceURL      string        `json:"source_url"`
	CreatedAt      time.Time     `json:"created_at"`
	Status         Status        `json:"status"`
	Pages          []PageRecord  `json:"pages"`
	Assets         []AssetRecord `json:"assets"`
	TotalSizeBytes int64         `json:"total_size_bytes"`
}

// TotalSize sums page sizes plus successfully downloaded asset sizes.
func TotalSize(pages []PageRecord, assets []AssetRecord) int64 {
	var total int64
	for _, p := range pages {
		total += p.SizeBytes
	}
	for _, a := range assets {
		if a.Status == AssetSuccess {
			total += a.SizeBytes
		}
	}
	return total
}

// CrawlResult is the orchestrator's aggregate output for one run.
type CrawlResult struct {
	Pages  []PageRecord
	Assets []AssetRecord
}

// FetchResult is the payload returned by a Fetcher implementation.
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Fetcher executes a single HTTP GET against an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Clock abstracts wall-clock time so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces globally unique archive ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces short stable content hashes for filename disambiguation.
type Hasher interface {
	Hash(data []byte) (string, error)
}
