package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssetCategorySubdir(t *testing.T) {
	t.Parallel()

	require.Equal(t, "css", AssetCSS.Subdir())
	require.Equal(t, "js", AssetJS.Subdir())
	require.Equal(t, "images", AssetImage.Subdir())
}

func TestTotalSizeSkipsFailedAssets(t *testing.T) {
	t.Parallel()

	pages := []PageRecord{
		{URL: "https://example.com", SizeBytes: 100},
		{URL: "https://example.com/a", SizeBytes: 50},
	}
	assets := []AssetRecord{
		{SourceURL: "https://example.com/style.css", SizeBytes: 30, Status: AssetSuccess},
		{SourceURL: "https://example.com/gone.png", SizeBytes: 999, Status: AssetFailed},
	}
	require.Equal(t, int64(180), TotalSize(pages, assets))
}

func TestTotalSizeEmpty(t *testing.T) {
	t.Parallel()

	require.Zero(t, TotalSize(nil, nil))
}

func TestFetchErrorRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       FetchError
		retryable bool
	}{
		{"network", FetchError{Kind: FetchNetwork}, true},
		{"timeout", FetchError{Kind: FetchTimeout}, true},
		{"server error", FetchError{Kind: FetchStatus, StatusCode: 503}, true},
		{"not found", FetchError{Kind: FetchStatus, StatusCode: 404}, false},
		{"forbidden", FetchError{Kind: FetchStatus, StatusCode: 403}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.retryable, tc.err.Retryable())
		})
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("connection refused")
	err := &FetchError{Kind: FetchNetwork, URL: "https://example.com", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "https://example.com")
}

func TestDownloadErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := &FetchError{Kind: FetchStatus, URL: "https://example.com/x.css", StatusCode: 404}
	err := &DownloadError{URL: "https://example.com/x.css", Err: inner}

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, 404, fe.StatusCode)
}
