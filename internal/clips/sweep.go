package clips

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jzydn/jay-clips-archive/internal/logging"
	"github.com/jzydn/jay-clips-archive/internal/storage"
)

// SweepOptions controls orphan reclamation.
type SweepOptions struct {
	// Grace skips blobs modified more recently than this, so uploads whose
	// row is still being inserted are left alone.
	Grace       time.Duration
	DryRun      bool
	Concurrency int
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	Scanned  int64 `json:"scanned"`
	Orphaned int64 `json:"orphaned"`
	Removed  int64 `json:"removed"`
	Failed   int64 `json:"failed"`
}

// Sweep deletes stored blobs that no clip row references. Blob delete
// failures are counted and logged; repository failures abort the run.
func (s *Service) Sweep(ctx context.Context, opts SweepOptions) (report SweepReport, err error) {
	ctx, span := logging.StartSpan(ctx, "clips.sweep")
	defer func() { span.End(err) }()

	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	cutoff := s.NowFunc().Add(-opts.Grace)

	var candidates []storage.BlobInfo
	err = s.blobs.Walk(ctx, func(info storage.BlobInfo) error {
		if !strings.HasPrefix(info.Path, storage.BlobDir+"/") {
			return nil
		}
		report.Scanned++
		if info.ModTime.After(cutoff) {
			return nil
		}
		candidates = append(candidates, info)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk blobs: %w", err)
	}

	var orphaned, removed, failed atomic.Int64
	logger := logging.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, info := range candidates {
		g.Go(func() error {
			referenced, err := s.repo.FilePathExists(gctx, info.Path)
			if err != nil {
				return fmt.Errorf("check %s: %w", info.Path, err)
			}
			if referenced {
				return nil
			}

			orphaned.Add(1)
			if opts.DryRun {
				logger.Info("orphaned clip file", "file_path", info.Path, "size", info.Size)
				return nil
			}
			if err := s.blobs.Delete(gctx, info.Path); err != nil {
				failed.Add(1)
				logger.Warn("remove orphaned clip file failed", "file_path", info.Path, "error", err)
				return nil
			}
			removed.Add(1)
			logger.Info("removed orphaned clip file", "file_path", info.Path, "size", info.Size)
			return nil
		})
	}
	err = g.Wait()

	report.Orphaned = orphaned.Load()
	report.Removed = removed.Load()
	report.Failed = failed.Load()
	if err != nil {
		return report, err
	}
	return report, nil
}
