// Package processor parses page markup, captures referenced assets, and
// rewrites references to their stored copies.
package processor

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/assets"
)

// defaultParallel bounds concurrent asset downloads for one page.
const defaultParallel = 4

// Result is the processor's output for one page. HTML and Assets are
// only valid because every download has completed before Process returns.
type Result struct {
	HTML   []byte
	Assets []archive.AssetRecord
	Links  []string
}

// Processor extracts and rewrites asset references and collects
// same-domain hyperlinks.
type Processor struct {
	downloader  *assets.Downloader
	logger      *zap.Logger
	maxParallel int
}

// New builds a Processor. maxParallel <= 0 selects the default bound.
func New(downloader *assets.Downloader, maxParallel int, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxParallel <= 0 {
		maxParallel = defaultParallel
	}
	return &Processor{
		downloader:  downloader,
		logger:      logger,
		maxParallel: maxParallel,
	}
}

type assetRef struct {
	sel      *goquery.Selection
	attr     string
	absURL   string
	category archive.AssetCategory
}

type outcome struct {
	res archive.AssetRecord
	ok  bool
}

// Process parses markup served from pageURL, downloads every referenced
// stylesheet/script/image into dir, waits for all downloads to resolve,
// rewrites successful references to local paths, and returns the
// rewritten markup, asset records, and deduplicated same-domain links.
func (p *Processor) Process(
	ctx context.Context,
	pageURL *url.URL,
	markup []byte,
	dir *assets.Dir,
) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return Result{}, err
	}

	refs := p.collectAssetRefs(doc, pageURL)
	outcomes := p.downloadAll(ctx, refs, dir)

	records := make([]archive.AssetRecord, 0, len(outcomes))
	seen := make(map[string]bool, len(outcomes))
	for _, ref := range refs {
		out := outcomes[ref.absURL]
		if out.ok {
			// Pages live under pages/, assets one level up from there.
			ref.sel.SetAttr(ref.attr, "../"+out.res.LocalPath)
		}
		if !seen[ref.absURL] {
			seen[ref.absURL] = true
			records = append(records, out.res)
		}
	}

	links := p.collectLinks(doc, pageURL)

	rendered, err := doc.Html()
	if err != nil {
		return Result{}, err
	}

	return Result{
		HTML:   []byte(rendered),
		Assets: records,
		Links:  links,
	}, nil
}

// collectAssetRefs gathers stylesheet, script, and image references with
// their resolved absolute URLs.
func (p *Processor) collectAssetRefs(doc *goquery.Document, base *url.URL) []assetRef {
	var refs []assetRef

	appendRef := func(sel *goquery.Selection, attr string, category archive.AssetCategory) {
		raw, exists := sel.Attr(attr)
		if !exists {
			return
		}
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		refs = append(refs, assetRef{sel: sel, attr: attr, absURL: abs, category: category})
	}

	doc.Find("link[rel=stylesheet]").Each(func(_ int, sel *goquery.Selection) {
		appendRef(sel, "href", archive.AssetCSS)
	})
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		appendRef(sel, "src", archive.AssetJS)
	})
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		appendRef(sel, "src", archive.AssetImage)
	})

	return refs
}

// downloadAll runs every unique download through a bounded errgroup and
// joins before returning; the rewrite step must never observe an
// in-flight download.
func (p *Processor) downloadAll(ctx context.Context, refs []assetRef, dir *assets.Dir) map[string]outcome {
	unique := make(map[string]archive.AssetCategory, len(refs))
	order := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := unique[ref.absURL]; !ok {
			unique[ref.absURL] = ref.category
			order = append(order, ref.absURL)
		}
	}

	outcomes := make(map[string]outcome, len(unique))
	var g errgroup.Group
	g.SetLimit(p.maxParallel)

	results := make([]outcome, len(order))
	for i, absURL := range order {
		category := unique[absURL]
		g.Go(func() error {
			res, err := p.downloader.Download(ctx, absURL, category, dir)
			if err != nil {
				p.logger.Warn("asset download failed",
					zap.String("url", absURL),
					zap.String("category", string(category)),
					zap.Error(err),
				)
				results[i] = outcome{res: archive.AssetRecord{
					Category:  category,
					SourceURL: absURL,
					Status:    archive.AssetFailed,
				}}
				return nil
			}
			results[i] = outcome{
				res: archive.AssetRecord{
					Category:    category,
					SourceURL:   absURL,
					LocalPath:   res.LocalPath,
					ContentType: res.ContentType,
					SizeBytes:   res.SizeBytes,
					Status:      archive.AssetSuccess,
				},
				ok: true,
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures become failed records

	for i, absURL := range order {
		outcomes[absURL] = results[i]
	}
	return outcomes
}

// collectLinks returns hyperlink targets resolved to absolute form and
// filtered to hostnames exactly equal to the page's hostname. No eTLD+1
// or www normalization happens here; that scoping policy is deliberate.
func (p *Processor) collectLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		raw, _ := sel.Attr("href")
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			return
		}
		if strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "tel:") {
			return
		}
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		parsed, err := url.Parse(abs)
		if err != nil || parsed.Hostname() != base.Hostname() {
			return
		}
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links
}

// resolve turns raw into an absolute http(s) URL against base.
func resolve(base *url.URL, raw string) (string, bool) {
	ref, err := base.Parse(raw)
	if err != nil {
		return "", false
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}
