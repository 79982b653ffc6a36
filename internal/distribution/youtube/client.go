package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	ytapi "google.golang.org/api/youtube/v3"

	"vidrelay/internal/distribution"
	"vidrelay/pkg/httputil"
)

const (
	uploadURL    = "https://www.googleapis.com/upload/youtube/v3/videos"
	watchURLBase = "https://www.youtube.com/watch?v="
	platform     = "youtube"

	// ChunkAlignment is the granularity the resumable protocol requires for
	// every chunk but the last.
	ChunkAlignment   = 256 * 1024
	DefaultChunkSize = 32 * ChunkAlignment

	defaultRequestTimeout  = 60 * time.Second
	statusResumeIncomplete = 308
)

var _ distribution.Uploader = (*Client)(nil)

type Client struct {
	auth           *Auth
	httpClient     *http.Client
	uploadURL      string
	chunkSize      int64
	retry          httputil.RetryPolicy
	requestTimeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithUploadURL(url string) Option {
	return func(c *Client) { c.uploadURL = url }
}

// WithChunkSize rounds size down to a multiple of ChunkAlignment.
func WithChunkSize(size int64) Option {
	return func(c *Client) {
		if aligned := size - size%ChunkAlignment; aligned > 0 {
			c.chunkSize = aligned
		}
	}
}

func WithRetryPolicy(policy httputil.RetryPolicy) Option {
	return func(c *Client) { c.retry = policy.WithDefaults() }
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

func NewClient(auth *Auth, opts ...Option) *Client {
	c := &Client{
		auth:           auth,
		httpClient:     http.DefaultClient,
		uploadURL:      uploadURL,
		chunkSize:      DefaultChunkSize,
		retry:          httputil.DefaultRetryPolicy(),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WatchURL is the canonical watch page for a video id.
func WatchURL(videoID string) string {
	return watchURLBase + videoID
}

func (c *Client) Platform() string {
	return platform
}

func (c *Client) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResponse, error) {
	if req.Media == nil || req.Size <= 0 {
		return nil, &UploadError{Err: errors.New("no media to upload")}
	}

	httpClient, err := c.auth.Client(ctx, c.httpClient)
	if err != nil {
		return nil, err
	}
	// 308 means Resume Incomplete here, never a redirect.
	httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	s := &session{
		client: c,
		http:   httpClient,
		media:  req.Media,
		total:  req.Size,
	}

	videoID, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	return &distribution.UploadResponse{
		ID:       videoID,
		URL:      WatchURL(videoID),
		Platform: platform,
	}, nil
}

type uploadState int

const (
	stateInit uploadState = iota
	stateSessionOpen
	stateChunkSend
	stateFinalize
	stateDone
	stateError
)

func (s uploadState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateSessionOpen:
		return "session_open"
	case stateChunkSend:
		return "chunk_send"
	case stateFinalize:
		return "finalize"
	case stateDone:
		return "done"
	default:
		return "error"
	}
}

type session struct {
	client   *Client
	http     *http.Client
	media    io.ReaderAt
	total    int64
	offset   int64
	location string
	state    uploadState
	final    *http.Response
	videoID  string
}

func (s *session) run(ctx context.Context, req distribution.UploadRequest) (string, error) {
	for {
		var err error

		switch s.state {
		case stateInit:
			err = s.open(ctx, req)
		case stateSessionOpen:
			s.state = stateChunkSend
		case stateChunkSend:
			err = s.transfer(ctx)
		case stateFinalize:
			err = s.finalize()
		case stateDone:
			return s.videoID, nil
		}

		if err != nil {
			slog.Debug("Upload aborted", "state", s.state, "offset", s.offset, "error", err)
			s.state = stateError
			return "", err
		}
	}
}

func (s *session) open(ctx context.Context, req distribution.UploadRequest) error {
	metadata := &ytapi.Video{
		Snippet: &ytapi.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  req.CategoryID,
		},
		Status: &ytapi.VideoStatus{
			PrivacyStatus:           req.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return &SessionError{Err: fmt.Errorf("failed to marshal metadata: %w", err)}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "video/*"
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=UTF-8")
	header.Set("X-Upload-Content-Length", strconv.FormatInt(s.total, 10))
	header.Set("X-Upload-Content-Type", contentType)

	url := s.client.uploadURL + "?uploadType=resumable&part=snippet,status"
	policy := s.client.retry

	for attempt := 1; ; attempt++ {
		resp, err := s.do(ctx, http.MethodPost, url, bytes.NewReader(body), int64(len(body)), header)

		if err == nil && resp.StatusCode == http.StatusOK {
			s.location = resp.Header.Get("Location")
			closeBody(resp)
			if s.location == "" {
				return &SessionError{StatusCode: http.StatusOK, Err: errors.New("no session location returned")}
			}
			slog.Info("Upload session opened", "bytes", s.total)
			s.state = stateSessionOpen
			return nil
		}

		var cause error
		if httputil.IsTransient(resp, err) {
			cause = transientCause(resp, err)
		} else {
			if err != nil {
				return &SessionError{Err: err}
			}
			gErr := apiError(resp)
			closeBody(resp)
			if !rateLimited(gErr) {
				return classifyRejection(gErr, func(g *googleapi.Error) error {
					return &SessionError{StatusCode: g.Code, Reason: firstReason(g), Err: g}
				})
			}
			cause = gErr
		}

		if attempt >= policy.MaxAttempts {
			return &SessionError{Err: fmt.Errorf("giving up after %d attempts: %w", attempt, cause)}
		}
		slog.Warn("Session open failed, retrying", "attempt", attempt, "error", cause)
		if err := policy.Wait(ctx, attempt); err != nil {
			return &SessionError{Err: err}
		}
	}
}

// transfer sends chunks until the platform reports the upload complete.
// After any failure the session is queried and sending resumes from the
// offset the server acknowledged.
func (s *session) transfer(ctx context.Context) error {
	policy := s.client.retry
	failures := 0
	resync := false

	for s.state == stateChunkSend {
		start := s.offset

		var resp *http.Response
		var err error
		if resync {
			resp, err = s.query(ctx)
		} else {
			resp, err = s.sendChunk(ctx)
		}

		var cause error
		switch {
		case err != nil:
			if !httputil.IsTransient(nil, err) {
				return &UploadError{Offset: s.offset, Err: err}
			}
			cause = err

		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			s.final = resp
			s.offset = s.total
			s.state = stateFinalize
			return nil

		case resp.StatusCode == statusResumeIncomplete:
			acked, perr := ackedBytes(resp.Header.Get("Range"))
			closeBody(resp)
			if perr != nil || acked > s.total {
				return &UploadError{Offset: s.offset, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad acknowledgment %q", resp.Header.Get("Range"))}
			}

			wasQuery := resync
			resync = false
			s.offset = acked

			switch {
			case acked == s.total:
				// Every byte is in, only the completion response is missing.
				resync = true
				if !wasQuery {
					continue
				}
				cause = errors.New("all bytes acknowledged but upload not completed")
			case acked > start:
				failures = 0
				slog.Debug("Chunk acknowledged", "offset", acked, "total", s.total)
				continue
			case wasQuery:
				continue
			default:
				cause = errors.New("no bytes acknowledged")
			}

		case !httputil.IsTransient(resp, nil):
			gErr := apiError(resp)
			closeBody(resp)
			if !rateLimited(gErr) {
				return classifyRejection(gErr, func(g *googleapi.Error) error {
					return &UploadError{Offset: s.offset, StatusCode: g.Code, Err: g}
				})
			}
			cause = gErr

		default:
			cause = fmt.Errorf("status %d", resp.StatusCode)
			closeBody(resp)
		}

		failures++
		if failures >= policy.MaxAttempts {
			return &UploadError{Offset: s.offset, Err: fmt.Errorf("giving up after %d attempts: %w", failures, cause)}
		}
		slog.Warn("Chunk failed, retrying", "offset", s.offset, "attempt", failures, "error", cause)
		if err := policy.Wait(ctx, failures); err != nil {
			return &UploadError{Offset: s.offset, Err: err}
		}
		resync = true
	}

	return nil
}

func (s *session) sendChunk(ctx context.Context) (*http.Response, error) {
	end := min(s.offset+s.client.chunkSize, s.total)
	length := end - s.offset

	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", s.offset, end-1, s.total))

	return s.do(ctx, http.MethodPut, s.location, io.NewSectionReader(s.media, s.offset, length), length, header)
}

// query asks the session how many bytes it has durably received.
func (s *session) query(ctx context.Context) (*http.Response, error) {
	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes */%d", s.total))

	return s.do(ctx, http.MethodPut, s.location, http.NoBody, 0, header)
}

func (s *session) finalize() error {
	defer closeBody(s.final)

	var video ytapi.Video
	if err := json.NewDecoder(s.final.Body).Decode(&video); err != nil {
		return &UploadError{Offset: s.total, StatusCode: s.final.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if video.Id == "" {
		return &UploadError{Offset: s.total, StatusCode: s.final.StatusCode, Err: errors.New("response carried no video id")}
	}

	slog.Info("Upload complete", "video_id", video.Id, "bytes", s.total)
	s.videoID = video.Id
	s.state = stateDone
	return nil
}

func (s *session) do(ctx context.Context, method, url string, body io.Reader, size int64, header http.Header) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.client.requestTimeout)

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.ContentLength = size
	for key, values := range header {
		req.Header[key] = values
	}

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// ackedBytes parses a "bytes=0-N" Range header. No header means nothing
// has been received yet.
func ackedBytes(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, fmt.Errorf("unexpected range unit in %q", header)
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok || first != "0" {
		return 0, fmt.Errorf("unexpected range %q", header)
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("unexpected range %q", header)
	}
	return n + 1, nil
}

func transientCause(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	code := resp.StatusCode
	closeBody(resp)
	return fmt.Errorf("status %d", code)
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
