// Package cleaner enforces retention policy over the blob tree: an age
// sweep, an orphan sweep and a total-size sweep. The sweeps only ever
// delete files; metadata rows are left to their owners. They run
// concurrently and a failure in one never cancels the others.
package cleaner

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mailloft/mailloft/internal/blobstore"
	"github.com/mailloft/mailloft/internal/index"
	"github.com/mailloft/mailloft/internal/metrics"
)

// Policy holds the retention limits.
type Policy struct {
	MaxAge       time.Duration
	MaxTotalSize int64
	MaxOrphanAge time.Duration
}

// DefaultPolicy returns the documented defaults: 90 days, 2 GiB, 7 days.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:       90 * 24 * time.Hour,
		MaxTotalSize: 2 << 30,
		MaxOrphanAge: 7 * 24 * time.Hour,
	}
}

// Report aggregates what the sweeps removed.
type Report struct {
	AgeFiles    int
	AgeBytes    int64
	OrphanFiles int
	OrphanBytes int64
	SizeFiles   int
	SizeBytes   int64
}

// TotalFiles returns the number of files removed across all sweeps.
func (r Report) TotalFiles() int {
	return r.AgeFiles + r.OrphanFiles + r.SizeFiles
}

// Cleaner runs retention sweeps over a blob store, consulting the
// relational index for the orphan sweep only.
type Cleaner struct {
	blobs *blobstore.Store
	index *index.Index
	log   *zap.Logger
}

// New creates a cleaner.
func New(blobs *blobstore.Store, ix *index.Index, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{blobs: blobs, index: ix, log: log}
}

// Run executes the three sweeps concurrently and joins them before
// returning. Each sweep scans the tree independently; racing deletions
// between sweeps are harmless because deleting an absent file is a no-op.
// Callers must invalidate the attachment cache afterwards.
func (c *Cleaner) Run(ctx context.Context, policy Policy) (Report, error) {
	start := time.Now()
	now := start
	var report Report

	var g errgroup.Group
	g.Go(func() error {
		files, bytes, err := c.sweepAge(ctx, now, policy.MaxAge)
		report.AgeFiles, report.AgeBytes = files, bytes
		return err
	})
	g.Go(func() error {
		files, bytes, err := c.sweepOrphans(ctx, now, policy.MaxOrphanAge)
		report.OrphanFiles, report.OrphanBytes = files, bytes
		return err
	})
	g.Go(func() error {
		files, bytes, err := c.sweepSize(ctx, policy.MaxTotalSize)
		report.SizeFiles, report.SizeBytes = files, bytes
		return err
	})

	err := g.Wait()

	c.log.Info("cleanup finished",
		zap.Duration("took", time.Since(start)),
		zap.Int("age_files", report.AgeFiles),
		zap.Int64("age_bytes", report.AgeBytes),
		zap.Int("orphan_files", report.OrphanFiles),
		zap.Int64("orphan_bytes", report.OrphanBytes),
		zap.Int("size_files", report.SizeFiles),
		zap.Int64("size_bytes", report.SizeBytes),
		zap.Error(err),
	)
	return report, err
}

// sweepAge removes files older than now-maxAge.
func (c *Cleaner) sweepAge(ctx context.Context, now time.Time, maxAge time.Duration) (int, int64, error) {
	files, err := c.blobs.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	cutoff := now.Add(-maxAge)

	var removed int
	var bytes int64
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := c.blobs.Delete(f.RelPath); err != nil {
			c.log.Warn("age sweep: failed to delete file",
				zap.String("path", f.RelPath), zap.Error(err))
			continue
		}
		removed++
		bytes += f.Size
	}
	metrics.CleanupRemovedFiles.WithLabelValues("age").Add(float64(removed))
	metrics.CleanupRemovedBytes.WithLabelValues("age").Add(float64(bytes))
	return removed, bytes, nil
}

// sweepOrphans removes files no attachment row references any more, once
// they have been orphaned longer than maxOrphanAge. This is the one sweep
// that crosses the index/blob boundary.
func (c *Cleaner) sweepOrphans(ctx context.Context, now time.Time, maxOrphanAge time.Duration) (int, int64, error) {
	referenced, err := c.index.ReferencedStoragePaths(ctx)
	if err != nil {
		return 0, 0, err
	}
	files, err := c.blobs.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	cutoff := now.Add(-maxOrphanAge)

	var removed int
	var bytes int64
	for _, f := range files {
		if _, ok := referenced[f.RelPath]; ok {
			continue
		}
		if !f.ModTime.Before(cutoff) {
			// Recently orphaned; give in-flight saves time to record
			// their metadata row.
			continue
		}
		if err := c.blobs.Delete(f.RelPath); err != nil {
			c.log.Warn("orphan sweep: failed to delete file",
				zap.String("path", f.RelPath), zap.Error(err))
			continue
		}
		removed++
		bytes += f.Size
	}
	metrics.CleanupRemovedFiles.WithLabelValues("orphan").Add(float64(removed))
	metrics.CleanupRemovedBytes.WithLabelValues("orphan").Add(float64(bytes))
	return removed, bytes, nil
}

// sweepSize deletes oldest-first until the tree fits under maxTotalSize.
// Ties on mtime break on path so repeated runs pick the same victims.
func (c *Cleaner) sweepSize(ctx context.Context, maxTotalSize int64) (int, int64, error) {
	files, err := c.blobs.List(ctx)
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	if total <= maxTotalSize {
		return 0, 0, nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].RelPath < files[j].RelPath
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})

	var removed int
	var bytes int64
	for _, f := range files {
		if total <= maxTotalSize {
			break
		}
		if err := c.blobs.Delete(f.RelPath); err != nil {
			c.log.Warn("size sweep: failed to delete file",
				zap.String("path", f.RelPath), zap.Error(err))
			continue
		}
		total -= f.Size
		removed++
		bytes += f.Size
	}
	metrics.CleanupRemovedFiles.WithLabelValues("size").Add(float64(removed))
	metrics.CleanupRemovedBytes.WithLabelValues("size").Add(float64(bytes))
	return removed, bytes, nil
}
