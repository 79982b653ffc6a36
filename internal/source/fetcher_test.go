package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scratchEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestFetchSuccess(t *testing.T) {
	payload := []byte("fake video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(server.Client(), dir)

	download, err := fetcher.Fetch(context.Background(), server.URL+"/a.mp4")
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), download.Size)
	assert.Equal(t, "video/mp4", download.ContentType)

	buf := make([]byte, len(payload))
	n, err := download.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
	assert.Len(t, scratchEntries(t, dir), 1)

	require.NoError(t, download.Close())
	assert.Empty(t, scratchEntries(t, dir))
	assert.NoError(t, download.Close(), "second Close should be a no-op")
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	_, err := NewFetcher(server.Client(), dir).Fetch(context.Background(), server.URL+"/missing.mp4")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, scratchEntries(t, dir))
}

func TestFetchInterrupted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(1024))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := NewFetcher(server.Client(), dir).Fetch(context.Background(), server.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
	assert.Empty(t, scratchEntries(t, dir))
}

func TestFetchUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFetcher(nil, t.TempDir()).Fetch(context.Background(), url)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := NewFetcher(server.Client(), dir).Fetch(context.Background(), server.URL)

	require.Error(t, err)
	assert.Empty(t, scratchEntries(t, dir))
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	_, err := NewFetcher(server.Client(), dir).Fetch(ctx, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, scratchEntries(t, dir))
}
