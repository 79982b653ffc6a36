package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"vidrelay/internal/app/model"
	"vidrelay/internal/distribution"
	"vidrelay/internal/storage"
)

var (
	errNotConfigured = errors.New("upload relay is not configured")
	errNoStore       = errors.New("no result store configured")
	errNoNotifier    = errors.New("no callback notifier configured")
)

type Pipeline struct {
	service *Service
}

// Report is what one run produced. Outcome is always set; the channel
// errors say which deliveries failed.
type Report struct {
	RunID   string
	Outcome *model.UploadOutcome

	Stored   bool
	StoreErr error

	Notified  bool
	NotifyErr error

	Sweep    *storage.SweepResult
	SweepErr error
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service}
}

// Run fetches, uploads, delivers the outcome and sweeps the store. It never
// fails: every problem ends up in the outcome or the report.
func (pipeline *Pipeline) Run(ctx context.Context, req model.UploadRequest) *Report {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID)
	if req.CorrelationID != "" {
		logger = logger.With("unique_id", req.CorrelationID)
	}

	report := &Report{RunID: runID}
	report.Outcome = pipeline.upload(ctx, logger, req)

	if req.CorrelationID != "" {
		pipeline.persist(ctx, logger, req, report)
	}
	if req.CallbackURL != "" {
		pipeline.notify(ctx, logger, req, report)
	}
	pipeline.sweep(ctx, logger, report)

	return report
}

func (pipeline *Pipeline) upload(ctx context.Context, logger *slog.Logger, req model.UploadRequest) (outcome *model.UploadOutcome) {
	service := pipeline.service

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Upload panicked", "panic", r)
			outcome = model.Failed(req, fmt.Errorf("internal error: %v", r), service.now())
		}
	}()

	if service.Fetcher() == nil || service.Uploader() == nil {
		return model.Failed(req, errNotConfigured, service.now())
	}

	logger.Info("Fetching source...", "url", req.SourceURL)
	download, err := service.Fetcher().Fetch(ctx, req.SourceURL)
	if err != nil {
		logger.Error("Fetch failed", "error", err)
		return model.Failed(req, err, service.now())
	}
	defer func() {
		if err := download.Close(); err != nil {
			logger.Warn("Failed to remove scratch file", "path", download.Path(), "error", err)
		}
	}()

	uploader := service.Uploader()
	logger.Info("Uploading...", "platform", uploader.Platform(), "bytes", download.Size, "title", req.Title)
	response, err := uploader.Upload(ctx, distribution.UploadRequest{
		Media:       download,
		Size:        download.Size,
		ContentType: download.ContentType,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		CategoryID:  req.CategoryID,
		Privacy:     string(req.Privacy),
	})
	if err != nil {
		logger.Error("Upload failed", "error", err)
		return model.Failed(req, err, service.now())
	}

	logger.Info("Upload complete", "video_id", response.ID, "url", response.URL)
	return model.Succeeded(req, response.ID, response.URL, service.now())
}

func (pipeline *Pipeline) persist(ctx context.Context, logger *slog.Logger, req model.UploadRequest, report *Report) {
	store := pipeline.service.Store()
	if store == nil {
		report.StoreErr = errNoStore
		if buildErr := pipeline.service.StoreErr(); buildErr != nil {
			report.StoreErr = fmt.Errorf("%w: %w", errNoStore, buildErr)
		}
		logger.Error("Result not recorded", "error", report.StoreErr)
		return
	}

	if err := store.Put(ctx, req.CorrelationID, report.Outcome); err != nil {
		report.StoreErr = err
		logger.Error("Result not recorded", "entry", storage.EntryName(req.CorrelationID), "error", err)
		return
	}

	report.Stored = true
	logger.Info("Result recorded", "entry", storage.EntryName(req.CorrelationID))
}

func (pipeline *Pipeline) notify(ctx context.Context, logger *slog.Logger, req model.UploadRequest, report *Report) {
	notifier := pipeline.service.Notifier()
	if notifier == nil {
		report.NotifyErr = errNoNotifier
		logger.Warn("Callback not sent", "error", report.NotifyErr)
		return
	}

	if err := notifier.Notify(ctx, req.CallbackURL, report.Outcome); err != nil {
		report.NotifyErr = err
		logger.Warn("Callback failed", "url", req.CallbackURL, "error", err)
		return
	}

	report.Notified = true
	logger.Info("Callback delivered", "url", req.CallbackURL)
}

func (pipeline *Pipeline) sweep(ctx context.Context, logger *slog.Logger, report *Report) {
	sweeper := pipeline.service.Sweeper()
	if sweeper == nil {
		return
	}

	result, err := sweeper.Sweep(ctx)
	report.Sweep = result
	if err != nil {
		report.SweepErr = err
		logger.Warn("Sweep failed", "error", err)
	}
}
