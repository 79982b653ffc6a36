package distribution

import (
	"context"
	"io"
)

// UploadRequest carries the media and the metadata the platform records for it.
type UploadRequest struct {
	Media       io.ReaderAt
	Size        int64
	ContentType string
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

type UploadResponse struct {
	ID       string
	URL      string
	Platform string
}

type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Platform() string
}
