// Package store is the storage facade the rest of the application talks
// to. It composes the relational index, the blob store and the attachment
// cache, and enforces the one ordering rule that keeps them consistent:
// an attachment's metadata row is written only after its blob write (or
// dedup link-up) succeeded. A crash mid-save can leave an unreferenced
// blob, which the orphan sweep reclaims; it can never leave a metadata
// row pointing at bytes that were never written.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mailloft/mailloft/internal/blobstore"
	"github.com/mailloft/mailloft/internal/cache"
	"github.com/mailloft/mailloft/internal/checksum"
	"github.com/mailloft/mailloft/internal/cleaner"
	"github.com/mailloft/mailloft/internal/index"
	"github.com/mailloft/mailloft/internal/metrics"
	"github.com/mailloft/mailloft/internal/models"
)

// inlineThreshold is the size up to which attachment bytes are stored
// directly in the relational row instead of the blob tree.
const inlineThreshold = 16 << 10

// Storage is the facade over the three storage components.
type Storage struct {
	index   *index.Index
	blobs   *blobstore.Store
	cache   *cache.AttachmentCache
	cleaner *cleaner.Cleaner
	log     *zap.Logger
}

// New wires the facade together.
func New(ix *index.Index, blobs *blobstore.Store, attachmentCache *cache.AttachmentCache, log *zap.Logger) *Storage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		index:   ix,
		blobs:   blobs,
		cache:   attachmentCache,
		cleaner: cleaner.New(blobs, ix, log),
		log:     log,
	}
}

// StoreHeaders upserts headers from the sync pipeline.
func (s *Storage) StoreHeaders(ctx context.Context, headers []models.MessageHeader) error {
	return s.index.UpsertHeaders(ctx, headers)
}

// GetHeaders lists headers for a folder, newest first. limit < 0 means all.
func (s *Storage) GetHeaders(ctx context.Context, accountID, folder string, limit, offset int) ([]models.MessageHeader, error) {
	return s.index.Headers(ctx, accountID, folder, limit, offset)
}

// GetHeader returns the header for a single message, or nil if absent.
func (s *Storage) GetHeader(ctx context.Context, accountID, folder string, uid uint32) (*models.MessageHeader, error) {
	return s.index.Header(ctx, accountID, folder, uid)
}

// ExistingUIDs returns the UIDs already stored for a folder.
func (s *Storage) ExistingUIDs(ctx context.Context, accountID, folder string) (map[uint32]struct{}, error) {
	return s.index.ExistingUIDs(ctx, accountID, folder)
}

// UpdateFlags replaces flag sets per UID.
func (s *Storage) UpdateFlags(ctx context.Context, accountID, folder string, uidToFlags map[uint32][]string) error {
	return s.index.UpdateFlags(ctx, accountID, folder, uidToFlags)
}

// GetBody returns the stored body for a message, or nil.
func (s *Storage) GetBody(ctx context.Context, accountID, folder string, uid uint32) (*models.MessageBody, error) {
	return s.index.Body(ctx, accountID, folder, uid)
}

// GetMissingBodyUIDs returns which of the given UIDs still lack a body.
func (s *Storage) GetMissingBodyUIDs(ctx context.Context, accountID, folder string, uids []uint32) ([]uint32, error) {
	return s.index.MissingBodyUIDs(ctx, accountID, folder, uids)
}

// StoreRawBody writes a body row. If a row already exists, previously
// extracted text/html survive a write that carries nil for them, so a
// failed re-processing pass can never erase content that was already
// extracted.
func (s *Storage) StoreRawBody(ctx context.Context, body models.MessageBody) error {
	existing, err := s.index.Body(ctx, body.AccountID, body.Folder, body.UID)
	if err != nil {
		return err
	}
	if existing != nil {
		if body.Text == nil {
			body.Text = existing.Text
		}
		if body.HTML == nil {
			body.HTML = existing.HTML
		}
		if body.Raw == nil {
			body.Raw = existing.Raw
		}
		if body.ProcessedAt == nil {
			body.ProcessedAt = existing.ProcessedAt
		}
	}
	return s.index.UpsertRawBody(ctx, body)
}

// SaveAttachment persists attachment bytes and records the metadata row.
// Small payloads are inlined into the row. Larger payloads are
// deduplicated by checksum: when the index already tracks a blob with the
// same digest and its file still exists, no new file is written and the
// new row shares the canonical storage path.
func (s *Storage) SaveAttachment(ctx context.Context, meta models.AttachmentMeta, data []byte) (models.BlobLocation, error) {
	sum := meta.Checksum
	if sum == "" {
		sum = checksum.Digest(data)
	}

	row := models.Attachment{
		AccountID: meta.AccountID,
		Folder:    meta.Folder,
		UID:       meta.UID,
		PartID:    meta.PartID,
		Filename:  meta.Filename,
		MimeType:  meta.MimeType,
		ContentID: meta.ContentID,
		IsInline:  meta.IsInline,
		Checksum:  sum,
		SizeBytes: int64(len(data)),
	}

	if len(data) <= inlineThreshold {
		row.InlineData = data
		if err := s.index.UpsertAttachments(ctx, []models.Attachment{row}); err != nil {
			return models.BlobLocation{}, fmt.Errorf("failed to record inline attachment: %w", err)
		}
		metrics.AttachmentSaves.WithLabelValues("inlined").Inc()
		return models.BlobLocation{Size: int64(len(data)), Inline: true}, nil
	}

	loc, deduplicated, err := s.resolveBlob(ctx, meta, sum, data)
	if err != nil {
		return models.BlobLocation{}, err
	}

	// Metadata only after the bytes are durably in place.
	row.StoragePath = loc.Path
	if err := s.index.UpsertAttachments(ctx, []models.Attachment{row}); err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to record attachment metadata: %w", err)
	}

	if deduplicated {
		metrics.AttachmentSaves.WithLabelValues("deduplicated").Inc()
	} else {
		metrics.AttachmentSaves.WithLabelValues("written").Inc()
	}
	return loc, nil
}

// resolveBlob either reuses the canonical blob for sum or writes a new one.
func (s *Storage) resolveBlob(ctx context.Context, meta models.AttachmentMeta, sum string, data []byte) (models.BlobLocation, bool, error) {
	existing, err := s.index.AttachmentByChecksum(ctx, sum)
	if err != nil {
		return models.BlobLocation{}, false, err
	}
	if existing != nil && existing.StoragePath != "" && s.blobs.Exists(existing.StoragePath) {
		s.log.Debug("attachment deduplicated",
			zap.String("checksum", sum),
			zap.String("canonical", existing.StoragePath))
		return models.BlobLocation{Path: existing.StoragePath, Size: int64(len(data))}, true, nil
	}

	loc, err := s.blobs.Save(ctx, meta, data)
	if err != nil {
		return models.BlobLocation{}, false, fmt.Errorf("failed to save attachment blob: %w", err)
	}
	return loc, false, nil
}

// GetAttachments lists the attachment rows for a message, ordered by part.
func (s *Storage) GetAttachments(ctx context.Context, accountID, folder string, uid uint32) ([]models.Attachment, error) {
	return s.index.AttachmentsFor(ctx, accountID, folder, uid)
}

// LoadAttachment returns the bytes for an attachment row. Absence is not
// an error: a deleted or unreadable blob yields (nil, false). Loaded blob
// bytes are cached for subsequent reads.
func (s *Storage) LoadAttachment(ctx context.Context, att models.Attachment) ([]byte, bool) {
	if len(att.InlineData) > 0 {
		return att.InlineData, true
	}
	if att.StoragePath == "" {
		// Inline by construction; a zero-byte payload is still present.
		return []byte{}, true
	}

	key := att.CacheKey()
	if data, ok := s.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		return data, true
	}
	metrics.CacheMisses.Inc()

	data, ok := s.blobs.Load(att.StoragePath)
	if !ok {
		return nil, false
	}
	s.cache.Add(key, s.blobs.AbsPath(att.StoragePath), data)
	return data, true
}

// RunCleanup executes the retention sweeps. The attachment cache is
// invalidated unconditionally afterwards, even when a sweep failed, since
// any file it references may be gone.
func (s *Storage) RunCleanup(ctx context.Context, policy cleaner.Policy) (cleaner.Report, error) {
	report, err := s.cleaner.Run(ctx, policy)
	s.cache.InvalidateAll()
	return report, err
}

// Deduplicate collapses duplicate attachment rows per checksum.
func (s *Storage) Deduplicate(ctx context.Context) (int64, error) {
	removed, err := s.index.DeduplicateAttachmentRows(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.DedupRowsRemoved.Add(float64(removed))
		s.log.Info("deduplicated attachment rows", zap.Int64("removed", removed))
	}
	return removed, nil
}

// RemoveMessages deletes messages from the index (attachments, bodies,
// headers, in that order). Blob files are left to the orphan sweep.
func (s *Storage) RemoveMessages(ctx context.Context, accountID, folder string, uids []uint32) error {
	return s.index.RemoveMessages(ctx, accountID, folder, uids)
}

// Stats walks the blob tree and reports storage totals plus the cache
// capacity. Not for hot paths.
func (s *Storage) Stats(ctx context.Context) (models.StorageStats, error) {
	stats, err := s.blobs.Stats(ctx)
	if err != nil {
		return models.StorageStats{}, err
	}
	stats.CacheCapacity = s.cache.MaxCost()
	return stats, nil
}
