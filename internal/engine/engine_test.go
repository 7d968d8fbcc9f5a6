package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/assets"
	"github.com/webvault/webvault/internal/hash/sha256"
	"github.com/webvault/webvault/internal/processor"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]archive.FetchResult
	fetches   map[string]int
}

func newFakeFetcher(responses map[string]archive.FetchResult) *fakeFetcher {
	return &fakeFetcher{
		responses: responses,
		fetches:   make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (archive.FetchResult, error) {
	f.mu.Lock()
	f.fetches[rawURL]++
	f.mu.Unlock()

	res, ok := f.responses[rawURL]
	if !ok {
		return archive.FetchResult{}, &archive.FetchError{
			Kind:       archive.FetchStatus,
			URL:        rawURL,
			StatusCode: 404,
		}
	}
	return res, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[rawURL]
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func htmlPage(links ...string) archive.FetchResult {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href=%q>link</a>`, l)
	}
	b.WriteString("</body></html>")
	return archive.FetchResult{
		Body:        []byte(b.String()),
		ContentType: "text/html",
		StatusCode:  200,
	}
}

func newTestEngine(t *testing.T, fetcher archive.Fetcher, cfg Config) (*Engine, *assets.Dir, string) {
	t.Helper()
	root := t.TempDir()
	dir, err := assets.NewDir(root)
	require.NoError(t, err)

	dl := assets.NewDownloader(fetcher, sha256.New(), zap.NewNop())
	proc := processor.New(dl, 2, zap.NewNop())
	clock := fixedClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(fetcher, proc, sha256.New(), clock, cfg, zap.NewNop()), dir, root
}

func pageURLs(pages []archive.PageRecord) []string {
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = p.URL
	}
	return urls
}

func TestRunArchivesSameDomainPagesWithinDepth(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/":   htmlPage("/a", "/b", "/c", "https://other.test/x"),
		"https://site.test/a":  htmlPage(),
		"https://site.test/b":  htmlPage(),
		"https://site.test/c":  htmlPage(),
		"https://other.test/x": htmlPage(),
	})
	e, dir, root := newTestEngine(t, fetcher, Config{MaxDepth: 1, MaxWorkers: 1})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{
		"https://site.test/",
		"https://site.test/a",
		"https://site.test/b",
		"https://site.test/c",
	}, pageURLs(res.Pages))
	require.Zero(t, fetcher.count("https://other.test/x"))

	for _, p := range res.Pages {
		_, statErr := os.Stat(filepath.Join(root, "pages", p.LocalFilename))
		require.NoError(t, statErr, "page %s", p.URL)
	}
}

func TestRunDepthZeroFetchesOnlyRoot(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/":  htmlPage("/a"),
		"https://site.test/a": htmlPage(),
	})
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 0, MaxWorkers: 1})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	require.Zero(t, fetcher.count("https://site.test/a"))
}

func TestRunFetchesEachURLOnce(t *testing.T) {
	t.Parallel()

	// Cycle: root <-> /a, both also linking themselves.
	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/":  htmlPage("/a", "/"),
		"https://site.test/a": htmlPage("/", "/a"),
	})
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 5, MaxWorkers: 2})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	require.Equal(t, 1, fetcher.count("https://site.test/"))
	require.Equal(t, 1, fetcher.count("https://site.test/a"))
}

func TestRunCapsFanOutPerPage(t *testing.T) {
	t.Parallel()

	links := make([]string, 0, 15)
	responses := map[string]archive.FetchResult{}
	for i := 0; i < 15; i++ {
		link := fmt.Sprintf("/p%02d", i)
		links = append(links, link)
		responses["https://site.test"+link] = htmlPage()
	}
	responses["https://site.test/"] = htmlPage(links...)

	fetcher := newFakeFetcher(responses)
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 1, MaxWorkers: 4})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1+FanOutLimit)
}

func TestRunSkipsUnfetchablePages(t *testing.T) {
	t.Parallel()

	// /a has no response and fetches as a 404.
	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/":  htmlPage("/a", "/b"),
		"https://site.test/b": htmlPage(),
	})
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 1, MaxWorkers: 1})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"https://site.test/",
		"https://site.test/b",
	}, pageURLs(res.Pages))
}

func TestRunRecordsFailedAssets(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/": {
			Body:        []byte(`<html><body><img src="/gone.png"></body></html>`),
			ContentType: "text/html",
			StatusCode:  200,
		},
	})
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 0, MaxWorkers: 1})

	res, err := e.Run(context.Background(), "https://site.test/", dir)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	require.Len(t, res.Assets, 1)
	require.Equal(t, archive.AssetFailed, res.Assets[0].Status)
	require.Equal(t, "https://site.test/gone.png", res.Assets[0].SourceURL)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]archive.FetchResult{
		"https://site.test/": htmlPage(),
	})
	e, dir, _ := newTestEngine(t, fetcher, Config{MaxDepth: 1, MaxWorkers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, "https://site.test/", dir)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPageRelPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pages/index.html", PageRelPath("index.html"))
}
