package app

import (
	"context"
	"io"
	"time"

	"vidrelay/internal/app/model"
	"vidrelay/internal/distribution"
	"vidrelay/internal/source"
	"vidrelay/internal/storage"
	"vidrelay/pkg/config"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*source.Download, error)
}

type Notifier interface {
	Notify(ctx context.Context, callbackURL string, outcome *model.UploadOutcome) error
}

type Sweeper interface {
	Sweep(ctx context.Context) (*storage.SweepResult, error)
}

type Service struct {
	cfg      *config.Config
	fetcher  Fetcher
	uploader distribution.Uploader
	store    storage.ResultStore
	storeErr error
	notifier Notifier
	sweeper  Sweeper
	now      func() time.Time
}

type ServiceOptions struct {
	Config   *config.Config
	Fetcher  Fetcher
	Uploader distribution.Uploader
	Store    storage.ResultStore
	// StoreErr is why Store is nil, when it could not be opened.
	StoreErr error
	Notifier Notifier
	Sweeper  Sweeper
	Clock    func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:      opts.Config,
		fetcher:  opts.Fetcher,
		uploader: opts.Uploader,
		store:    opts.Store,
		storeErr: opts.StoreErr,
		notifier: opts.Notifier,
		sweeper:  opts.Sweeper,
		now:      now,
	}
}

func (s *Service) Config() *config.Config          { return s.cfg }
func (s *Service) Fetcher() Fetcher                { return s.fetcher }
func (s *Service) Uploader() distribution.Uploader { return s.uploader }
func (s *Service) Store() storage.ResultStore      { return s.store }
func (s *Service) StoreErr() error                 { return s.storeErr }
func (s *Service) Notifier() Notifier              { return s.notifier }
func (s *Service) Sweeper() Sweeper                { return s.sweeper }

// Close releases the store's client if it holds one.
func (s *Service) Close() error {
	if closer, ok := s.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
