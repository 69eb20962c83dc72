package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mailloft/mailloft/internal/models"
)

// Body returns the body row for a message, or nil if none is stored.
func (ix *Index) Body(ctx context.Context, accountID, folder string, uid uint32) (*models.MessageBody, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var b models.MessageBody
	var processedAt sql.NullInt64
	err := ix.db.QueryRowContext(ctx, `
		SELECT account_id, folder, uid, body_text, body_html, has_attachments,
		       content_type, charset, transfer_encoding, is_multipart,
		       raw_size, raw_body, processed_at
		FROM bodies
		WHERE account_id = ? AND folder = ? AND uid = ?
	`, accountID, folder, uid).Scan(
		&b.AccountID, &b.Folder, &b.UID, &b.Text, &b.HTML, &b.HasAttachments,
		&b.ContentType, &b.Charset, &b.TransferEncoding, &b.IsMultipart,
		&b.RawSize, &b.Raw, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query body: %w", err)
	}
	b.ProcessedAt = epochPtr(processedAt)
	return &b, nil
}

// MissingBodyUIDs returns the subset of uids that have a header but no
// body row yet. An empty uids slice returns empty without touching the
// database.
func (ix *Index) MissingBodyUIDs(ctx context.Context, accountID, folder string, uids []uint32) ([]uint32, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	args := make([]any, 0, len(uids)+2)
	args = append(args, accountID, folder)
	for _, uid := range uids {
		args = append(args, uid)
	}

	query := fmt.Sprintf(`
		SELECT h.uid
		FROM headers h
		LEFT JOIN bodies b
			ON b.account_id = h.account_id AND b.folder = h.folder AND b.uid = h.uid
		WHERE h.account_id = ? AND h.folder = ? AND h.uid IN (%s) AND b.uid IS NULL
	`, placeholders(len(uids)))

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing bodies: %w", err)
	}
	defer rows.Close()

	var missing []uint32
	for rows.Next() {
		var uid uint32
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan uid: %w", err)
		}
		missing = append(missing, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missing bodies: %w", err)
	}
	return missing, nil
}

// UpsertRawBody writes all body columns as one row, replacing any existing
// row for the key. No merge happens here: callers that need to preserve
// previously extracted text/html must merge before calling (the facade
// does exactly that).
func (ix *Index) UpsertRawBody(ctx context.Context, body models.MessageBody) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bodies (
			account_id, folder, uid, body_text, body_html, has_attachments,
			content_type, charset, transfer_encoding, is_multipart,
			raw_size, raw_body, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		body.AccountID, body.Folder, body.UID, body.Text, body.HTML, body.HasAttachments,
		body.ContentType, body.Charset, body.TransferEncoding, body.IsMultipart,
		body.RawSize, body.Raw, ptrEpoch(body.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert body: %w", err)
	}
	return nil
}
