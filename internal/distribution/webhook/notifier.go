package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vidrelay/internal/app/model"
)

const defaultTimeout = 10 * time.Second

// NotifyError is reported by the caller and never escalated.
type NotifyError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("callback %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("callback %s: %v", e.URL, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Notifier posts an outcome to a caller-supplied URL exactly once.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
}

func NewNotifier(client *http.Client, timeout time.Duration) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{client: client, timeout: timeout}
}

func (n *Notifier) Notify(ctx context.Context, callbackURL string, outcome *model.UploadOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return &NotifyError{URL: callbackURL, Err: fmt.Errorf("marshal outcome: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return &NotifyError{URL: callbackURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &NotifyError{URL: callbackURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NotifyError{URL: callbackURL, StatusCode: resp.StatusCode}
	}
	return nil
}
