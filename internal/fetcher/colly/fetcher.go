// Package collyfetcher implements archive.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/webvault/webvault/internal/archive"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs a single HTTP GET per call using a cloned Colly
// collector. It follows no redirects beyond the transport defaults and
// never retries; retry policy lives in the retry decorator.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Failures come back as *archive.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (archive.FetchResult, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return archive.FetchResult{}, &archive.FetchError{Kind: archive.FetchNetwork, URL: rawURL, Err: err}
	}

	var (
		result   archive.FetchResult
		fetchErr error
	)
	collector := f.buildCollector(rawURL, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return archive.FetchResult{}, &archive.FetchError{Kind: archive.FetchTimeout, URL: rawURL, Err: ctx.Err()}
	case err := <-done:
		if fetchErr != nil {
			return archive.FetchResult{}, fetchErr
		}
		if err != nil {
			return archive.FetchResult{}, classify(rawURL, 0, err)
		}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(rawURL string, result *archive.FetchResult, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			*fetchErr = classify(rawURL, r.StatusCode, nil)
			return
		}
		*result = archive.FetchResult{
			Body:        append([]byte(nil), r.Body...),
			ContentType: r.Headers.Get("Content-Type"),
			StatusCode:  r.StatusCode,
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		*fetchErr = classify(rawURL, status, err)
	})

	return collector
}

func classify(rawURL string, status int, err error) error {
	if status >= http.StatusBadRequest || (status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices)) {
		return &archive.FetchError{Kind: archive.FetchStatus, URL: rawURL, StatusCode: status, Err: err}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &archive.FetchError{Kind: archive.FetchTimeout, URL: rawURL, Err: err}
	}
	return &archive.FetchError{Kind: archive.FetchNetwork, URL: rawURL, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
