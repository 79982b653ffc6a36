package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"vidrelay/internal/app/model"
)

// LocalStore keeps entries as files in one directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Put(_ context.Context, id string, outcome *model.UploadOutcome) error {
	if err := validateID(id); err != nil {
		return &WriteError{Op: "put", Err: err}
	}

	data, err := encodeOutcome(outcome)
	if err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to encode outcome: %w", err)}
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to create result directory: %w", err)}
	}

	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to write entry: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to write entry: %w", err)}
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, EntryName(id))); err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to publish entry: %w", err)}
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, id string) (*model.UploadOutcome, error) {
	if err := validateID(id); err != nil {
		return nil, &ReadError{Op: "get", Err: err}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, EntryName(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &ReadError{Op: "get", Err: err}
	}

	outcome, err := decodeOutcome(data)
	if err != nil {
		return nil, &ReadError{Op: "get", Err: fmt.Errorf("malformed entry %s: %w", EntryName(id), err)}
	}
	return outcome, nil
}

func (s *LocalStore) ListAges(_ context.Context) ([]EntryAge, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{Op: "list", Err: fmt.Errorf("failed to read result directory: %w", err)}
	}

	var ages []EntryAge
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := IDFromEntry(entry.Name()); !ok {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &ReadError{Op: "list", Err: err}
		}

		createdAt, err := entryCreatedAt(data)
		if err != nil {
			slog.Warn("Skipping entry without a readable timestamp", "entry", entry.Name(), "error", err)
			continue
		}
		ages = append(ages, EntryAge{Name: entry.Name(), CreatedAt: createdAt})
	}
	return ages, nil
}

func (s *LocalStore) Delete(_ context.Context, names []string) (int, error) {
	deleted := 0
	for _, name := range names {
		if name == ReadmeName || filepath.Base(name) != name {
			continue
		}
		err := os.Remove(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return deleted, &WriteError{Op: "delete", Err: err}
		}
		deleted++
	}
	return deleted, nil
}
