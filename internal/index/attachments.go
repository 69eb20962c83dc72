package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailloft/mailloft/internal/models"
)

// UpsertAttachments writes attachment rows in one transaction. A row that
// already exists for (account, folder, uid, part) is replaced in place,
// keeping its id and created_at. The incoming ID field is ignored and the
// input slice is never modified; read the stored ids back if needed.
func (ix *Index) UpsertAttachments(ctx context.Context, attachments []models.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	return ix.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO attachments (
				id, account_id, folder, uid, part_id, filename, mime_type,
				size_bytes, content_id, is_inline, checksum, storage_path,
				inline_data, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, folder, uid, part_id) DO UPDATE SET
				filename     = excluded.filename,
				mime_type    = excluded.mime_type,
				size_bytes   = excluded.size_bytes,
				content_id   = excluded.content_id,
				is_inline    = excluded.is_inline,
				checksum     = excluded.checksum,
				storage_path = excluded.storage_path,
				inline_data  = excluded.inline_data
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare attachment insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, a := range attachments {
			id := uuid.NewString()
			var storagePath any
			if a.StoragePath != "" {
				storagePath = a.StoragePath
			}
			if _, err := stmt.ExecContext(ctx,
				id, a.AccountID, a.Folder, a.UID, a.PartID, a.Filename,
				a.MimeType, a.SizeBytes, a.ContentID, a.IsInline, a.Checksum,
				storagePath, a.InlineData, now,
			); err != nil {
				return fmt.Errorf("failed to insert attachment %s: %w", a.PartID, err)
			}
		}
		return nil
	})
}

// AttachmentsFor returns all attachment rows for a message, ordered by
// part id.
func (ix *Index) AttachmentsFor(ctx context.Context, accountID, folder string, uid uint32) ([]models.Attachment, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, account_id, folder, uid, part_id, filename, mime_type,
		       size_bytes, content_id, is_inline, checksum, storage_path,
		       inline_data, created_at
		FROM attachments
		WHERE account_id = ? AND folder = ? AND uid = ?
		ORDER BY part_id ASC
	`, accountID, folder, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// AttachmentByChecksum returns the canonical row for a checksum, or nil.
// The lowest id wins so repeated lookups always agree on the canonical
// file, matching the deduplication pass below.
func (ix *Index) AttachmentByChecksum(ctx context.Context, checksum string) (*models.Attachment, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, account_id, folder, uid, part_id, filename, mime_type,
		       size_bytes, content_id, is_inline, checksum, storage_path,
		       inline_data, created_at
		FROM attachments
		WHERE checksum = ?
		ORDER BY id ASC
		LIMIT 1
	`, checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment by checksum: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAttachment(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeduplicateAttachmentRows keeps exactly one row per checksum (the lowest
// id) and deletes the rest. Returns the number of rows removed.
func (ix *Index) DeduplicateAttachmentRows(ctx context.Context) (int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	result, err := ix.db.ExecContext(ctx, `
		DELETE FROM attachments
		WHERE id NOT IN (
			SELECT MIN(id) FROM attachments GROUP BY checksum
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to deduplicate attachments: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed rows: %w", err)
	}
	return removed, nil
}

// ReferencedStoragePaths returns every distinct storage path currently
// referenced by an attachment row. The orphan sweep joins this against the
// blob tree listing.
func (ix *Index) ReferencedStoragePaths(ctx context.Context) (map[string]struct{}, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT DISTINCT storage_path FROM attachments WHERE storage_path IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan storage path: %w", err)
		}
		paths[path] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage paths: %w", err)
	}
	return paths, nil
}

// RemoveMessages deletes messages and their dependents, children before
// parent: attachments, then bodies, then headers.
func (ix *Index) RemoveMessages(ctx context.Context, accountID, folder string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	return ix.inTx(ctx, func(tx *sql.Tx) error {
		args := make([]any, 0, len(uids)+2)
		args = append(args, accountID, folder)
		for _, uid := range uids {
			args = append(args, uid)
		}
		in := placeholders(len(uids))

		for _, table := range []string{"attachments", "bodies", "headers"} {
			query := fmt.Sprintf(`
				DELETE FROM %s WHERE account_id = ? AND folder = ? AND uid IN (%s)
			`, table, in)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		return nil
	})
}

func scanAttachment(rows *sql.Rows) (models.Attachment, error) {
	var a models.Attachment
	var contentID sql.NullString
	var storagePath sql.NullString
	var createdAt int64
	if err := rows.Scan(
		&a.ID, &a.AccountID, &a.Folder, &a.UID, &a.PartID, &a.Filename,
		&a.MimeType, &a.SizeBytes, &contentID, &a.IsInline, &a.Checksum,
		&storagePath, &a.InlineData, &createdAt,
	); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to scan attachment: %w", err)
	}
	a.ContentID = contentID.String
	a.StoragePath = storagePath.String
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return a, nil
}
