package models

import (
	"fmt"
	"sort"
	"time"
)

// MessageHeader is the primary entity all other message data hangs off.
// A header is identified by (AccountID, Folder, UID).
type MessageHeader struct {
	AccountID string     `json:"account_id"`
	Folder    string     `json:"folder"`
	UID       uint32     `json:"uid"`
	From      string     `json:"from"`
	Subject   string     `json:"subject"`
	Date      *time.Time `json:"date,omitempty"`
	Flags     []string   `json:"flags"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasFlag reports whether the header carries the given flag token.
func (h *MessageHeader) HasFlag(flag string) bool {
	for _, f := range h.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// NormalizeFlags returns a sorted copy of flags with duplicates removed.
// Flag sets are unordered; normalizing before persisting keeps the stored
// representation stable regardless of the order the sync layer saw them in.
func NormalizeFlags(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	normalized := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		normalized = append(normalized, f)
	}
	sort.Strings(normalized)
	return normalized
}

// MessageBody holds the decoded content of a message, keyed like its header.
// Text and HTML may both be nil while only the raw body has been stored;
// ProcessedAt is nil until a processing pass has run.
type MessageBody struct {
	AccountID        string     `json:"account_id"`
	Folder           string     `json:"folder"`
	UID              uint32     `json:"uid"`
	Text             *string    `json:"text,omitempty"`
	HTML             *string    `json:"html,omitempty"`
	HasAttachments   bool       `json:"has_attachments"`
	ContentType      string     `json:"content_type"`
	Charset          string     `json:"charset"`
	TransferEncoding string     `json:"transfer_encoding"`
	IsMultipart      bool       `json:"is_multipart"`
	RawSize          int64      `json:"raw_size"`
	Raw              *string    `json:"raw,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// Attachment is one stored attachment row. Checksum is mandatory; it is the
// dedup key. Exactly one of StoragePath and InlineData is normally set:
// small attachments are inlined into the row, larger ones live in the blob
// store at StoragePath (relative to the blob base directory).
type Attachment struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Folder      string    `json:"folder"`
	UID         uint32    `json:"uid"`
	PartID      string    `json:"part_id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentID   string    `json:"content_id,omitempty"`
	IsInline    bool      `json:"is_inline"`
	Checksum    string    `json:"checksum"`
	StoragePath string    `json:"storage_path,omitempty"`
	InlineData  []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheKey is the attachment cache key for this row.
func (a *Attachment) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s", a.AccountID, a.MailID(), a.PartID)
}

// MailID is the per-message directory component used in the blob tree.
func (a *Attachment) MailID() string {
	return MailID(a.Folder, a.UID)
}

// AttachmentMeta is what the MIME layer hands us alongside the decoded
// bytes when saving an attachment. Checksum is optional; the storage layer
// computes it when absent.
type AttachmentMeta struct {
	AccountID string
	Folder    string
	UID       uint32
	PartID    string
	Filename  string
	MimeType  string
	ContentID string
	IsInline  bool
	Checksum  string
}

// MailID is the per-message directory component used in the blob tree.
func (m *AttachmentMeta) MailID() string {
	return MailID(m.Folder, m.UID)
}

// MailID builds the blob-tree directory name for a message. Folder names
// can contain path separators (e.g. "INBOX/Receipts"), so they are flattened.
func MailID(folder string, uid uint32) string {
	sanitized := make([]rune, 0, len(folder))
	for _, r := range folder {
		switch r {
		case '/', '\\', ':':
			sanitized = append(sanitized, '_')
		default:
			sanitized = append(sanitized, r)
		}
	}
	return fmt.Sprintf("%s-%d", string(sanitized), uid)
}

// BlobLocation describes where saved attachment bytes ended up.
type BlobLocation struct {
	// Path is relative to the blob base directory; empty for inlined rows.
	Path string `json:"path,omitempty"`
	Size int64  `json:"size"`
	// Inline is true when the bytes were stored in the attachment row
	// itself and no blob file exists.
	Inline bool `json:"inline,omitempty"`
}

// StorageStats is the storage overview exposed to the UI layer.
type StorageStats struct {
	TotalBytes    int64 `json:"total_bytes"`
	FileCount     int   `json:"file_count"`
	AccountCount  int   `json:"account_count"`
	CacheCapacity int64 `json:"cache_capacity"`
}
