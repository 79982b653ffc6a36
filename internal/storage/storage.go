package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidrelay/internal/app/model"
)

const (
	entryPrefix = "youtube-upload-"
	entrySuffix = ".json"

	// ReadmeName is the placeholder file that keeps a gist non-empty.
	ReadmeName = "README.md"
)

var ErrNotFound = errors.New("result not found")

// ResultStore is the mailbox a polling caller reads outcomes from. Entries
// are keyed by correlation id and each id maps to exactly one entry.
type ResultStore interface {
	Put(ctx context.Context, id string, outcome *model.UploadOutcome) error
	Get(ctx context.Context, id string) (*model.UploadOutcome, error)
	ListAges(ctx context.Context) ([]EntryAge, error)
	Delete(ctx context.Context, names []string) (int, error)
}

// EntryAge is the creation time recorded inside an entry's own body.
type EntryAge struct {
	Name      string
	CreatedAt time.Time
}

type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("result store %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError means the outcome was not recorded. The upload itself may
// still have succeeded.
type WriteError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *WriteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("result store %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("result store %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func EntryName(id string) string {
	return entryPrefix + id + entrySuffix
}

func IDFromEntry(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, entryPrefix)
	if !ok {
		return "", false
	}
	return strings.CutSuffix(id, entrySuffix)
}

func encodeOutcome(outcome *model.UploadOutcome) ([]byte, error) {
	return json.MarshalIndent(outcome, "", "  ")
}

func decodeOutcome(data []byte) (*model.UploadOutcome, error) {
	var outcome model.UploadOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func entryCreatedAt(data []byte) (time.Time, error) {
	outcome, err := decodeOutcome(data)
	if err != nil {
		return time.Time{}, err
	}
	return outcome.CreatedAt()
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid result id %q", id)
	}
	return nil
}
