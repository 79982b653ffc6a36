package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"vidrelay/internal/app/model"
)

// bucket is the part of a GCS bucket the store uses. Names are full object
// names and a missing object is reported as ErrNotFound.
type bucket interface {
	write(ctx context.Context, name string, data []byte) error
	read(ctx context.Context, name string) ([]byte, error)
	list(ctx context.Context, prefix string) ([]string, error)
	remove(ctx context.Context, name string) error
}

// GCSStore keeps one object per entry, so puts and deletes are atomic per
// key and never race with unrelated writers.
type GCSStore struct {
	bucket bucket
	prefix string
	close  func() error
}

func NewGCSStore(ctx context.Context, bucketName, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return NewGCSStoreWithClient(client, bucketName, prefix), nil
}

func NewGCSStoreWithClient(client *storage.Client, bucketName, prefix string) *GCSStore {
	return &GCSStore{
		bucket: &gcsBucket{handle: client.Bucket(bucketName)},
		prefix: prefix,
		close:  client.Close,
	}
}

func (s *GCSStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *GCSStore) Put(ctx context.Context, id string, outcome *model.UploadOutcome) error {
	if err := validateID(id); err != nil {
		return &WriteError{Op: "put", Err: err}
	}

	data, err := encodeOutcome(outcome)
	if err != nil {
		return &WriteError{Op: "put", Err: fmt.Errorf("failed to encode outcome: %w", err)}
	}

	if err := s.bucket.write(ctx, s.objectName(EntryName(id)), data); err != nil {
		return &WriteError{Op: "put", Err: err}
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, id string) (*model.UploadOutcome, error) {
	if err := validateID(id); err != nil {
		return nil, &ReadError{Op: "get", Err: err}
	}

	data, err := s.bucket.read(ctx, s.objectName(EntryName(id)))
	if errors.Is(err, ErrNotFound) {
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

func (s *GCSStore) ListAges(ctx context.Context) ([]EntryAge, error) {
	objects, err := s.bucket.list(ctx, s.prefix+entryPrefix)
	if err != nil {
		return nil, &ReadError{Op: "list", Err: fmt.Errorf("failed to list objects: %w", err)}
	}

	var ages []EntryAge
	for _, object := range objects {
		name := strings.TrimPrefix(object, s.prefix)
		if _, ok := IDFromEntry(name); !ok || strings.Contains(name, "/") {
			continue
		}

		data, err := s.bucket.read(ctx, object)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &ReadError{Op: "list", Err: err}
		}

		createdAt, err := entryCreatedAt(data)
		if err != nil {
			slog.Warn("Skipping entry without a readable timestamp", "entry", name, "error", err)
			continue
		}
		ages = append(ages, EntryAge{Name: name, CreatedAt: createdAt})
	}
	return ages, nil
}

func (s *GCSStore) Delete(ctx context.Context, names []string) (int, error) {
	deleted := 0
	for _, name := range names {
		if name == ReadmeName {
			continue
		}
		err := s.bucket.remove(ctx, s.objectName(name))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, &WriteError{Op: "delete", Err: fmt.Errorf("failed to delete %s: %w", name, err)}
		}
		deleted++
	}
	return deleted, nil
}

func (s *GCSStore) objectName(name string) string {
	return s.prefix + name
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b *gcsBucket) write(ctx context.Context, name string, data []byte) error {
	w := b.handle.Object(name).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

func (b *gcsBucket) read(ctx context.Context, name string) ([]byte, error) {
	reader, err := b.handle.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (b *gcsBucket) list(ctx context.Context, prefix string) ([]string, error) {
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

func (b *gcsBucket) remove(ctx context.Context, name string) error {
	err := b.handle.Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
