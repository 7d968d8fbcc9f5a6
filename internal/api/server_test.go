package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/archiver"
	"github.com/webvault/webvault/internal/assets"
	"github.com/webvault/webvault/internal/clock/system"
	"github.com/webvault/webvault/internal/engine"
	"github.com/webvault/webvault/internal/hash/sha256"
	"github.com/webvault/webvault/internal/id/uuid"
	"github.com/webvault/webvault/internal/processor"
	"github.com/webvault/webvault/internal/store"
)

type fakeFetcher struct {
	responses map[string]archive.FetchResult
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (archive.FetchResult, error) {
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

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.New(t.TempDir(), nil, zap.NewNop())
	require.NoError(t, err)

	fetcher := &fakeFetcher{responses: map[string]archive.FetchResult{
		"https://site.test/": {
			Body:        []byte(`<html><body><a href="/about">about</a></body></html>`),
			ContentType: "text/html",
			StatusCode:  200,
		},
		"https://site.test/about": {
			Body:        []byte(`<html><body>about us</body></html>`),
			ContentType: "text/html",
			StatusCode:  200,
		},
	}}
	dl := assets.NewDownloader(fetcher, sha256.New(), zap.NewNop())
	proc := processor.New(dl, 2, zap.NewNop())
	clock := system.New()
	eng := engine.New(fetcher, proc, sha256.New(), clock, engine.Config{MaxDepth: 1, MaxWorkers: 1}, zap.NewNop())
	svc := archiver.New(st, eng, uuid.New(), clock, time.Minute, zap.NewNop())

	srv := httptest.NewServer(NewServer(svc, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postArchive(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/archives", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func createArchive(t *testing.T, srv *httptest.Server) archive.Archive {
	t.Helper()
	resp := postArchive(t, srv, `{"url": "https://site.test/"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var a archive.Archive
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
	return a
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		_ = resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateArchive(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	a := createArchive(t, srv)
	require.NotEmpty(t, a.ID)
	require.Equal(t, "https://site.test/", a.SourceURL)
	require.Equal(t, archive.StatusCompleted, a.Status)
	require.Len(t, a.Pages, 2)
}

func TestCreateArchiveBadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	for _, body := range []string{"{not json", `{}`, `{"url": ""}`, `{"url": "example.com"}`} {
		resp := postArchive(t, srv, body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %s", body)
	}
}

func TestListArchives(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	created := createArchive(t, srv)

	resp, err := http.Get(srv.URL + "/v1/archives")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Archives []archive.Archive `json:"archives"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Archives, 1)
	require.Equal(t, created.ID, payload.Archives[0].ID)
}

func TestGetArchive(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	created := createArchive(t, srv)

	resp, err := http.Get(srv.URL + "/v1/archives/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var a archive.Archive
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
	require.Equal(t, created.ID, a.ID)
}

func TestGetArchiveNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/archives/no-such-id")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetPage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	created := createArchive(t, srv)
	require.NotEmpty(t, created.Pages)

	resp, err := http.Get(srv.URL + "/v1/archives/" + created.ID + "/pages/" + created.Pages[0].LocalFilename)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotEmpty(t, body)
}

func TestGetPageNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	created := createArchive(t, srv)

	resp, err := http.Get(srv.URL + "/v1/archives/" + created.ID + "/pages/nope.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteArchive(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	created := createArchive(t, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/archives/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second delete of the same id reports not found.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/v1/archives/" + created.ID)
	require.NoError(t, err)
	_ = getResp.Body.Close()
	require.Equal(t, http.StatusNotFound, getResp.StatusCode)
}
