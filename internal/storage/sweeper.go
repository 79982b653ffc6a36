package storage

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

const DefaultRetention = 24 * time.Hour

type SweepResult struct {
	Scanned int
	Expired []string
	Deleted int
}

// Sweeper removes entries strictly older than the retention window.
type Sweeper struct {
	store     ResultStore
	retention time.Duration
	now       func() time.Time
}

func NewSweeper(store ResultStore, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		now:       time.Now,
	}
}

func (s *Sweeper) Retention() time.Duration {
	return s.retention
}

// Sweep issues at most one batched delete. Entries that vanish between the
// listing and the delete do not count as deleted and are not an error.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	ages, err := s.store.ListAges(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(ages)}
	now := s.now()
	for _, age := range ages {
		if now.Sub(age.CreatedAt) > s.retention {
			result.Expired = append(result.Expired, age.Name)
		}
	}
	sort.Strings(result.Expired)

	if len(result.Expired) == 0 {
		slog.Debug("Nothing to sweep", "scanned", result.Scanned)
		return result, nil
	}

	deleted, err := s.store.Delete(ctx, result.Expired)
	result.Deleted = deleted
	if err != nil {
		return result, err
	}

	slog.Info("Swept expired results", "scanned", result.Scanned, "expired", len(result.Expired), "deleted", deleted)
	return result, nil
}
