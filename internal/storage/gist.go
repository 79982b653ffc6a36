package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vidrelay/internal/app/model"
	"vidrelay/pkg/httputil"
)

const (
	defaultGistAPI  = "https://api.github.com"
	gistAPIVersion  = "2022-11-28"
	gistContentType = "application/vnd.github+json"
)

type gistFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

type gistDocument struct {
	Files map[string]*gistFile `json:"files"`
}

// gistContent is the write shape. A nil entry deletes the file.
type gistContent struct {
	Content string `json:"content"`
}

type gistPatch struct {
	Files map[string]*gistContent `json:"files"`
}

// GistStore keeps every entry as one file of a single gist. The gist API
// has no per-file write, so every mutation reads the current file map and
// writes the full desired map back.
type GistStore struct {
	client  *httputil.RetryClient
	baseURL string
	gistID  string
	token   string
}

type GistOption func(*gistOptions)

type gistOptions struct {
	httpClient *http.Client
	baseURL    string
	policy     httputil.RetryPolicy
}

func WithGistHTTPClient(client *http.Client) GistOption {
	return func(o *gistOptions) { o.httpClient = client }
}

func WithGistBaseURL(url string) GistOption {
	return func(o *gistOptions) { o.baseURL = strings.TrimRight(url, "/") }
}

func WithGistRetryPolicy(policy httputil.RetryPolicy) GistOption {
	return func(o *gistOptions) { o.policy = policy }
}

func NewGistStore(gistID, token string, opts ...GistOption) *GistStore {
	o := gistOptions{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultGistAPI,
		policy:     httputil.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &GistStore{
		client:  httputil.NewRetryClient(o.httpClient, o.policy),
		baseURL: o.baseURL,
		gistID:  gistID,
		token:   token,
	}
}

func (s *GistStore) Put(ctx context.Context, id string, outcome *model.UploadOutcome) error {
	if err := validateID(id); err != nil {
		return &WriteError{Op: "put", Err: err}
	}

	data, err := encodeOutcome(outcome)
	if err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to encode outcome: %w", err)}
	}

	files, err := s.load(ctx)
	if err != nil {
		return &WriteError{Op: "put", Err: err}
	}

	patch := make(map[string]*gistContent, len(files)+1)
	for name, content := range files {
		patch[name] = &gistContent{Content: content}
	}
	patch[EntryName(id)] = &gistContent{Content: string(data)}

	if err := s.write(ctx, "put", patch); err != nil {
		return err
	}

	slog.Debug("Stored result", "entry", EntryName(id), "gist", s.gistID)
	return nil
}

func (s *GistStore) Get(ctx context.Context, id string) (*model.UploadOutcome, error) {
	if err := validateID(id); err != nil {
		return nil, &ReadError{Op: "get", Err: err}
	}

	files, err := s.load(ctx)
	if err != nil {
		return nil, &ReadError{Op: "get", Err: err}
	}

	content, ok := files[EntryName(id)]
	if !ok {
		return nil, ErrNotFound
	}

	outcome, err := decodeOutcome([]byte(content))
	if err != nil {
		return nil, &ReadError{Op: "get", Err: fmt.Errorf("malformed entry %s: %w", EntryName(id), err)}
	}
	return outcome, nil
}

// ListAges skips the README placeholder and any file whose body has no
// readable timestamp. Skipped files are never swept.
func (s *GistStore) ListAges(ctx context.Context) ([]EntryAge, error) {
	files, err := s.load(ctx)
	if err != nil {
		return nil, &ReadError{Op: "list", Err: err}
	}

	ages := make([]EntryAge, 0, len(files))
	for name, content := range files {
		if name == ReadmeName {
			continue
		}
		createdAt, err := entryCreatedAt([]byte(content))
		if err != nil {
			slog.Warn("Skipping entry without a readable timestamp", "entry", name, "error", err)
			continue
		}
		ages = append(ages, EntryAge{Name: name, CreatedAt: createdAt})
	}
	return ages, nil
}

// Delete removes the named files in one write. Names already gone are
// ignored; if none remain no write is made.
func (s *GistStore) Delete(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	files, err := s.load(ctx)
	if err != nil {
		return 0, &WriteError{Op: "delete", Err: err}
	}

	patch := make(map[string]*gistContent, len(files))
	for name, content := range files {
		patch[name] = &gistContent{Content: content}
	}

	deleted := 0
	for _, name := range names {
		if name == ReadmeName {
			continue
		}
		if _, ok := files[name]; !ok {
			continue
		}
		patch[name] = nil
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := s.write(ctx, "delete", patch); err != nil {
		return 0, err
	}
	return deleted, nil
}

// load returns the current file map, resolving truncated files through
// their raw URL.
func (s *GistStore) load(ctx context.Context) (map[string]string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.gistURL(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gist returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc gistDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode gist: %w", err)
	}

	files := make(map[string]string, len(doc.Files))
	for name, f := range doc.Files {
		if f == nil {
			continue
		}
		content := f.Content
		if f.Truncated && f.RawURL != "" {
			content, err = s.fetchRaw(ctx, f.RawURL)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
			}
		}
		files[name] = content
	}
	return files, nil
}

func (s *GistStore) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("raw content returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *GistStore) write(ctx context.Context, op string, files map[string]*gistContent) error {
	body, err := json.Marshal(gistPatch{Files: files})
	if err != nil {
		return &WriteError{Op: op, Err: err}
	}

	req, err := s.newRequest(ctx, http.MethodPatch, s.gistURL(), body)
	if err != nil {
		return &WriteError{Op: op, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &WriteError{Op: op, Err: fmt.Errorf("failed to update gist: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &WriteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(msg)))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *GistStore) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", gistContentType)
	req.Header.Set("X-GitHub-Api-Version", gistAPIVersion)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *GistStore) gistURL() string {
	return s.baseURL + "/gists/" + s.gistID
}
