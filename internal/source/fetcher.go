package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultTimeout = 30 * time.Minute
	scratchPattern = "vidrelay-source-*"
)

type Fetcher struct {
	client *http.Client
	dir    string
}

// Download is a fetched source held in a scratch file. Close removes the file.
type Download struct {
	file        *os.File
	Size        int64
	ContentType string
}

func NewFetcher(client *http.Client, scratchDir string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		client: client,
		dir:    scratchDir,
	}
}

// Fetch streams rawURL into a scratch file. The file is removed on every
// failure path; on success the caller owns it through the returned Download.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	file, err := os.CreateTemp(f.dir, scratchPattern)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("create scratch file: %w", err)}
	}

	written, err := io.Copy(file, resp.Body)
	if err == nil && resp.ContentLength >= 0 && written != resp.ContentLength {
		err = fmt.Errorf("transfer interrupted after %d of %d bytes: %w", written, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if err == nil && written == 0 {
		err = errors.New("source is empty")
	}
	if err != nil {
		discard(file)
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	slog.Debug("Source fetched", "url", rawURL, "bytes", written, "path", file.Name())

	return &Download{
		file:        file,
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (d *Download) ReadAt(p []byte, off int64) (int, error) {
	return d.file.ReadAt(p, off)
}

func (d *Download) Path() string {
	return d.file.Name()
}

func (d *Download) Close() error {
	return discard(d.file)
}

func discard(file *os.File) error {
	closeErr := file.Close()
	if err := os.Remove(file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if errors.Is(closeErr, os.ErrClosed) {
		return nil
	}
	return closeErr
}
