// Package blobstore owns the attachment file tree. Files live at
// <base>/MailAttachments/<accountID>/<mailID>/<partID> and are written
// once per unique content; duplicate content is handled above this layer
// by pointing multiple attachment rows at one canonical path.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailloft/mailloft/internal/models"
)

// attachmentsDir is the canonical subdirectory under the base path.
const attachmentsDir = "MailAttachments"

// ErrInvalidPath is returned for paths that escape the blob tree.
var ErrInvalidPath = errors.New("invalid blob path")

// Store manages the physical attachment tree. The tree is append-mostly:
// readers must tolerate files disappearing mid-read.
type Store struct {
	base string
	log  *zap.Logger
}

// FileInfo describes one stored blob during a tree walk.
type FileInfo struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// New creates the blob store rooted at base, creating the canonical
// directory if needed.
func New(base string, log *zap.Logger) (*Store, error) {
	if base == "" {
		return nil, fmt.Errorf("blobstore base path cannot be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	root := filepath.Join(base, attachmentsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{base: base, log: log}, nil
}

// Root returns the canonical attachment directory.
func (s *Store) Root() string {
	return filepath.Join(s.base, attachmentsDir)
}

// Save writes data to the canonical path for meta, creating intermediate
// directories as needed. The write is atomic: bytes go to a temp file in
// the target directory first and are renamed into place, so a cancelled or
// crashed save never leaves a partial blob behind.
func (s *Store) Save(ctx context.Context, meta models.AttachmentMeta, data []byte) (models.BlobLocation, error) {
	rel := relPath(meta.AccountID, meta.MailID(), meta.PartID)
	full := filepath.Join(s.Root(), rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to create attachment directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp_*")
	if err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.BlobLocation{}, err
	}
	if _, err := tmp.Write(data); err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to sync attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.BlobLocation{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	tmp = nil

	// A cancellation between write and rename discards the temp file via
	// the deferred cleanup; the canonical path is never half-written.
	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		return models.BlobLocation{}, err
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return models.BlobLocation{}, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return models.BlobLocation{Path: rel, Size: int64(len(data))}, nil
}

// Locate resolves the canonical path for a stored attachment and returns
// it only if the file actually exists.
func (s *Store) Locate(accountID, mailID, partID string) (models.BlobLocation, bool) {
	rel := relPath(accountID, mailID, partID)
	info, err := os.Stat(filepath.Join(s.Root(), rel))
	if err != nil || info.IsDir() {
		return models.BlobLocation{}, false
	}
	return models.BlobLocation{Path: rel, Size: info.Size()}, true
}

// Exists reports whether the blob at rel is present.
func (s *Store) Exists(rel string) bool {
	if !validRel(rel) {
		return false
	}
	info, err := os.Stat(filepath.Join(s.Root(), rel))
	return err == nil && !info.IsDir()
}

// AbsPath returns the absolute path for a relative blob path. It does not
// check for existence.
func (s *Store) AbsPath(rel string) string {
	return filepath.Join(s.Root(), rel)
}

// Load reads the blob at rel. A missing or unreadable file is not an
// error here: loads happen on best-effort paths (cache population, detail
// views) where absence is handled by the caller. Failures are logged.
func (s *Store) Load(rel string) ([]byte, bool) {
	if !validRel(rel) {
		s.log.Warn("rejected blob path", zap.String("path", rel))
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), rel))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read blob", zap.String("path", rel), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Delete removes the blob at rel. Deleting a file that is already gone is
// not an error; retention sweeps race each other by design.
func (s *Store) Delete(rel string) error {
	if !validRel(rel) {
		return ErrInvalidPath
	}
	if err := os.Remove(filepath.Join(s.Root(), rel)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// List walks the tree once and returns every stored blob. Files vanishing
// mid-walk are skipped, not reported as errors.
func (s *Store) List(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	root := s.Root()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp_") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{RelPath: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk blob tree: %w", err)
	}
	return files, nil
}

// Stats walks the tree once and aggregates totals. O(n) in stored files;
// not for hot paths.
func (s *Store) Stats(ctx context.Context) (models.StorageStats, error) {
	files, err := s.List(ctx)
	if err != nil {
		return models.StorageStats{}, err
	}
	stats := models.StorageStats{FileCount: len(files)}
	accounts := make(map[string]struct{})
	for _, f := range files {
		stats.TotalBytes += f.Size
		if account, _, ok := strings.Cut(filepath.ToSlash(f.RelPath), "/"); ok {
			accounts[account] = struct{}{}
		}
	}
	stats.AccountCount = len(accounts)
	return stats, nil
}

func relPath(accountID, mailID, partID string) string {
	return filepath.Join(sanitize(accountID), sanitize(mailID), sanitize(partID))
}

func validRel(rel string) bool {
	return rel != "" && !strings.Contains(rel, "..") && !filepath.IsAbs(rel)
}

// sanitize flattens characters that would change the directory layout.
func sanitize(name string) string {
	sanitized := strings.ReplaceAll(name, "/", "_")
	sanitized = strings.ReplaceAll(sanitized, "\\", "_")
	sanitized = strings.ReplaceAll(sanitized, "..", "_")
	sanitized = strings.ReplaceAll(sanitized, ":", "_")
	sanitized = strings.TrimSpace(sanitized)
	if sanitized == "" {
		sanitized = "default"
	}
	return sanitized
}
