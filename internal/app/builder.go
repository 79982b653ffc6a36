package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"vidrelay/internal/distribution/webhook"
	"vidrelay/internal/distribution/youtube"
	"vidrelay/internal/source"
	"vidrelay/internal/storage"
	"vidrelay/pkg/config"
)

// BuildService wires the full upload relay from configuration. A store that
// cannot be opened is recorded on the service rather than returned, so the
// upload still runs and the callback still hears about it.
func BuildService(ctx context.Context, cfg *config.Config) (*Service, error) {
	var sweeper Sweeper
	store, storeErr := BuildStore(ctx, cfg)
	if storeErr != nil {
		slog.Warn("Result store unavailable", "backend", cfg.Store.Backend, "error", storeErr)
	} else {
		sweeper = storage.NewSweeper(store, cfg.Store.Retention)
	}

	fetcher := source.NewFetcher(&http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Fetch.ScratchDir)

	auth := youtube.NewAuth(youtube.Credentials{
		ClientID:     cfg.Credentials.YouTubeClientID,
		ClientSecret: cfg.Credentials.YouTubeClientSecret,
		RefreshToken: cfg.Credentials.YouTubeRefreshToken,
	})
	uploader := youtube.NewClient(auth,
		youtube.WithChunkSize(cfg.Upload.ChunkSize),
		youtube.WithRetryPolicy(cfg.Upload.Retry.Policy()),
		youtube.WithRequestTimeout(cfg.Upload.RequestTimeout),
	)

	return NewService(ServiceOptions{
		Config:   cfg,
		Fetcher:  fetcher,
		Uploader: uploader,
		Store:    store,
		StoreErr: storeErr,
		Notifier: webhook.NewNotifier(nil, cfg.Notify.Timeout),
		Sweeper:  sweeper,
	}), nil
}

// BuildStore opens the configured result store backend.
func BuildStore(ctx context.Context, cfg *config.Config) (storage.ResultStore, error) {
	switch cfg.Store.Backend {
	case config.BackendGist:
		if cfg.Store.GistID == "" {
			return nil, errors.New("gist store requires GIST_ID")
		}
		if cfg.Credentials.GistToken == "" {
			return nil, errors.New("gist store requires GIST_TOKEN")
		}
		return storage.NewGistStore(cfg.Store.GistID, cfg.Credentials.GistToken,
			storage.WithGistHTTPClient(&http.Client{Timeout: cfg.Upload.RequestTimeout}),
			storage.WithGistRetryPolicy(cfg.Upload.Retry.Policy()),
		), nil

	case config.BackendGCS:
		if cfg.Store.GCSBucket == "" {
			return nil, errors.New("gcs store requires GCS_BUCKET")
		}
		store, err := storage.NewGCSStore(ctx, cfg.Store.GCSBucket, cfg.Store.GCSPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendLocal:
		return storage.NewLocalStore(cfg.Store.LocalDir), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
