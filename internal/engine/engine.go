// Package engine drives the crawl: fetch, process, persist, recurse.
//
// The original recursive formulation is flattened into an explicit
// frontier of (url, depth) pairs drained level by level, so call-stack
// growth no longer tracks site size. Sibling nodes within a level run on
// a bounded worker pool; a pool of one reproduces strictly sequential
// crawling.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/assets"
	"github.com/webvault/webvault/internal/metrics"
	"github.com/webvault/webvault/internal/processor"
)

// FanOutLimit caps how many discovered links are followed from one page.
// Fixed, not configurable: it bounds crawl explosion at fanout^depth.
const FanOutLimit = 10

// pagesSubdir is where rewritten page markup is stored.
const pagesSubdir = "pages"

// Config controls one engine instance.
type Config struct {
	MaxDepth   int
	MaxWorkers int
}

// Engine orchestrates crawl runs. Safe for concurrent runs; all per-run
// state lives in the run, and visited sets are never shared between runs.
type Engine struct {
	fetcher   archive.Fetcher
	processor *processor.Processor
	hasher    archive.Hasher
	clock     archive.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds an Engine.
func New(
	fetcher archive.Fetcher,
	proc *processor.Processor,
	hasher archive.Hasher,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	return &Engine{
		fetcher:   fetcher,
		processor: proc,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

type node struct {
	url   string
	depth int
}

type nodeResult struct {
	page   *archive.PageRecord
	assets []archive.AssetRecord
	links  []string
	err    error // storage failures only; fetch failures are swallowed
}

// crawlRun holds the mutable state of one run. The visited set records
// exact URL strings: trailing slashes and query strings distinguish
// entries, which is the documented scoping behavior.
type crawlRun struct {
	engine  *Engine
	dir     *assets.Dir
	mu      sync.Mutex
	visited map[string]struct{}
}

// Run crawls rootURL into dir and returns the aggregated records.
// Individual page failures are logged and skipped; the returned error is
// reserved for cancellation and storage write failures.
func (e *Engine) Run(ctx context.Context, rootURL string, dir *assets.Dir) (archive.CrawlResult, error) {
	run := &crawlRun{
		engine:  e,
		dir:     dir,
		visited: make(map[string]struct{}),
	}

	var result archive.CrawlResult
	level := []node{{url: rootURL, depth: 0}}

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return archive.CrawlResult{}, fmt.Errorf("crawl canceled: %w", err)
		}

		outs := make([]nodeResult, len(level))
		var g errgroup.Group
		g.SetLimit(e.cfg.MaxWorkers)
		for i, n := range level {
			g.Go(func() error {
				outs[i] = run.process(ctx, n)
				return nil
			})
		}
		_ = g.Wait()

		var next []node
		for i, out := range outs {
			if out.err != nil {
				return archive.CrawlResult{}, out.err
			}
			if out.page == nil {
				continue
			}
			result.Pages = append(result.Pages, *out.page)
			result.Assets = append(result.Assets, out.assets...)

			if level[i].depth < e.cfg.MaxDepth {
				links := out.links
				if len(links) > FanOutLimit {
					links = links[:FanOutLimit]
				}
				for _, link := range links {
					next = append(next, node{url: link, depth: level[i].depth + 1})
				}
			}
		}
		level = next
	}

	return result, nil
}

// process handles one frontier node. Returning an empty result is the
// terminal, non-error case for revisits and fetch failures.
func (r *crawlRun) process(ctx context.Context, n node) nodeResult {
	if !r.markVisited(n.url) {
		return nodeResult{}
	}

	e := r.engine
	fetched, err := e.fetcher.Fetch(ctx, n.url)
	if err != nil {
		e.logger.Warn("page fetch failed",
			zap.String("url", n.url),
			zap.Int("depth", n.depth),
			zap.Error(err),
		)
		metrics.ObservePage("failed", 0)
		return nodeResult{}
	}

	pageURL, err := url.Parse(n.url)
	if err != nil {
		e.logger.Warn("unparsable page url", zap.String("url", n.url), zap.Error(err))
		metrics.ObservePage("failed", 0)
		return nodeResult{}
	}

	markup := fetched.Body
	var records []archive.AssetRecord
	var links []string
	processed, err := e.processor.Process(ctx, pageURL, fetched.Body, r.dir)
	if err != nil {
		// Unparsable markup is captured as served, without rewriting.
		e.logger.Warn("page processing failed", zap.String("url", n.url), zap.Error(err))
	} else {
		markup = processed.HTML
		records = processed.Assets
		links = processed.Links
	}

	digest, err := e.hasher.Hash([]byte(n.url))
	if err != nil {
		return nodeResult{err: fmt.Errorf("hash page url: %w", err)}
	}
	rel := r.dir.Reserve(pagesSubdir, assets.PageFilename(pageURL), n.url, digest[:8])
	if err := r.dir.Write(rel, markup); err != nil {
		return nodeResult{err: fmt.Errorf("persist page %s: %w", n.url, err)}
	}

	metrics.ObservePage("success", len(markup))
	for _, rec := range records {
		metrics.ObserveAsset(string(rec.Category), string(rec.Status), rec.SizeBytes)
	}

	e.logger.Debug("page archived",
		zap.String("url", n.url),
		zap.Int("depth", n.depth),
		zap.Int("assets", len(records)),
		zap.Int("links", len(links)),
	)

	return nodeResult{
		page: &archive.PageRecord{
			URL:           n.url,
			LocalFilename: strings.TrimPrefix(rel, pagesSubdir+"/"),
			SizeBytes:     int64(len(markup)),
			FetchedAt:     e.clock.Now(),
		},
		assets: records,
		links:  links,
	}
}

// markVisited marks url as fetched, returning false when it already was.
// The mutex keeps the at-most-once guarantee intact under sibling
// parallelism.
func (r *crawlRun) markVisited(rawURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[rawURL]; ok {
		return false
	}
	r.visited[rawURL] = struct{}{}
	return true
}

// PageRelPath maps a stored page filename back to its archive-relative path.
func PageRelPath(filename string) string {
	return path.Join(pagesSubdir, filename)
}
