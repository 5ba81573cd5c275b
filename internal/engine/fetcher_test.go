package engine_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// sheetServer serves body at /sheet.xlsx and records the query of the last request.
func sheetServer(t *testing.T, body string, query *string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sheet.xlsx" {
			http.NotFound(w, r)
			return
		}
		if query != nil {
			*query = r.URL.RawQuery
		}
		assert.Equal(t, config.UserAgent, r.Header.Get(config.HeaderUserAgent))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPFetcher_SharedLink(t *testing.T) {
	const workbook = "PK\x03\x04 workbook bytes"
	var query string
	ts := sheetServer(t, workbook, &query)

	rc, err := engine.NewHTTPFetcher().Fetch(context.Background(), ts.URL+"/sheet.xlsx?token=secret")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, workbook, string(body))
	assert.Equal(t, "token=secret", query, "the access token must reach the host")
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	ts := sheetServer(t, strings.Repeat("x", 100), nil)
	chunked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length: the cap must hold while reading.
		for i := 0; i < 10; i++ {
			_, _ = io.WriteString(w, strings.Repeat("x", 10))
			w.(http.Flusher).Flush()
		}
	}))
	defer chunked.Close()

	tests := []struct {
		name    string
		url     string
		maxSize int64
		wantLen int
		wantErr bool
	}{
		{"exactly at the cap", ts.URL + "/sheet.xlsx", 100, 100, false},
		{"declared length over the cap", ts.URL + "/sheet.xlsx", 10, 0, true},
		{"streamed body over the cap", chunked.URL, 50, 0, true},
		{"streamed body under the cap", chunked.URL, 200, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := engine.NewHTTPFetcher()
			f.MaxSize = tt.maxSize
			rc, err := f.Fetch(context.Background(), tt.url)
			if tt.wantErr {
				require.ErrorIs(t, err, engine.ErrTooLarge)
				assert.Nil(t, rc)
				return
			}
			require.NoError(t, err)
			defer func() { _ = rc.Close() }()
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Len(t, body, tt.wantLen)
		})
	}
}

func TestHTTPFetcher_Rejects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/private":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"not found", ts.URL + "/gone", []string{config.ErrFetchStatus, "404"}},
		{"forbidden", ts.URL + "/private", []string{config.ErrFetchStatus, "403"}},
		{"upstream error", ts.URL + "/other", []string{config.ErrFetchStatus, "502"}},
		{"local file", "file:///etc/passwd", []string{config.ErrProtocol}},
		{"ftp", "ftp://example.com/sheet.xlsx", []string{config.ErrProtocol}},
		{"control character", string([]byte{0x7f}), []string{config.ErrInvalidURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := engine.NewHTTPFetcher().Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.Nil(t, rc)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestHTTPFetcher_Deadline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := engine.NewHTTPFetcher().Fetch(ctx, ts.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
