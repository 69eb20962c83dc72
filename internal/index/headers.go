package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mailloft/mailloft/internal/models"
)

// ExistingUIDs returns the set of UIDs already indexed for a folder. The
// sync layer diffs this against the server's UID list.
func (ix *Index) ExistingUIDs(ctx context.Context, accountID, folder string) (map[uint32]struct{}, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT uid FROM headers WHERE account_id = ? AND folder = ?
	`, accountID, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing uids: %w", err)
	}
	defer rows.Close()

	uids := make(map[uint32]struct{})
	for rows.Next() {
		var uid uint32
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan uid: %w", err)
		}
		uids[uid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uids: %w", err)
	}
	return uids, nil
}

// UpsertHeaders inserts or replaces headers in one transaction. Flags are
// normalized and stored as a JSON array; created_at is preserved on
// replace.
func (ix *Index) UpsertHeaders(ctx context.Context, headers []models.MessageHeader) error {
	if len(headers) == 0 {
		return nil
	}
	return ix.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO headers (account_id, folder, uid, from_address, subject, date_epoch, flags_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, folder, uid) DO UPDATE SET
				from_address = excluded.from_address,
				subject = excluded.subject,
				date_epoch = excluded.date_epoch,
				flags_json = excluded.flags_json
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare header upsert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, h := range headers {
			flags, err := json.Marshal(models.NormalizeFlags(h.Flags))
			if err != nil {
				return fmt.Errorf("failed to marshal flags: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				h.AccountID, h.Folder, h.UID, h.From, h.Subject,
				ptrEpoch(h.Date), string(flags), now,
			); err != nil {
				return fmt.Errorf("failed to upsert header %d: %w", h.UID, err)
			}
		}
		return nil
	})
}

// UpdateFlags replaces the flag set per UID. Applying the same update
// twice is a no-op beyond the first.
func (ix *Index) UpdateFlags(ctx context.Context, accountID, folder string, uidToFlags map[uint32][]string) error {
	if len(uidToFlags) == 0 {
		return nil
	}
	return ix.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE headers SET flags_json = ?
			WHERE account_id = ? AND folder = ? AND uid = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare flag update: %w", err)
		}
		defer stmt.Close()

		for uid, flags := range uidToFlags {
			encoded, err := json.Marshal(models.NormalizeFlags(flags))
			if err != nil {
				return fmt.Errorf("failed to marshal flags: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, string(encoded), accountID, folder, uid); err != nil {
				return fmt.Errorf("failed to update flags for uid %d: %w", uid, err)
			}
		}
		return nil
	})
}

// Headers returns headers for a folder ordered by date descending with
// missing dates sorting last, ties broken by subject ascending. The
// ordering is part of the listing contract and must stay deterministic.
// limit < 0 means no limit.
func (ix *Index) Headers(ctx context.Context, accountID, folder string, limit, offset int) ([]models.MessageHeader, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if limit < 0 {
		limit = -1
	}
	rows, err := ix.db.QueryContext(ctx, `
		SELECT account_id, folder, uid, from_address, subject, date_epoch, flags_json, created_at
		FROM headers
		WHERE account_id = ? AND folder = ?
		ORDER BY date_epoch DESC NULLS LAST, subject ASC
		LIMIT ? OFFSET ?
	`, accountID, folder, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query headers: %w", err)
	}
	defer rows.Close()

	var headers []models.MessageHeader
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating headers: %w", err)
	}
	return headers, nil
}

// Header returns a single header row, or nil if absent.
func (ix *Index) Header(ctx context.Context, accountID, folder string, uid uint32) (*models.MessageHeader, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.db.QueryContext(ctx, `
		SELECT account_id, folder, uid, from_address, subject, date_epoch, flags_json, created_at
		FROM headers
		WHERE account_id = ? AND folder = ? AND uid = ?
	`, accountID, folder, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to query header: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	h, err := scanHeader(rows)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHeader(rows *sql.Rows) (models.MessageHeader, error) {
	var h models.MessageHeader
	var dateEpoch sql.NullInt64
	var flagsJSON string
	var createdAt int64
	if err := rows.Scan(
		&h.AccountID, &h.Folder, &h.UID, &h.From, &h.Subject,
		&dateEpoch, &flagsJSON, &createdAt,
	); err != nil {
		return models.MessageHeader{}, fmt.Errorf("failed to scan header: %w", err)
	}
	h.Date = epochPtr(dateEpoch)
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(flagsJSON), &h.Flags); err != nil {
		// Malformed rows degrade to absence of flags, not an error.
		h.Flags = nil
	}
	return h, nil
}

// placeholders builds "?, ?, ..." for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
