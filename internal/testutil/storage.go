// Package testutil provides storage fixtures for tests. Everything lives
// under t.TempDir, so cleanup is automatic.
package testutil

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mailloft/mailloft/internal/blobstore"
	"github.com/mailloft/mailloft/internal/cache"
	"github.com/mailloft/mailloft/internal/index"
)

// NewTestIndex creates a fresh SQLite index in a temp directory.
func NewTestIndex(t *testing.T) *index.Index {
	t.Helper()

	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open test index: %v", err)
	}
	t.Cleanup(func() {
		if err := ix.Close(); err != nil {
			t.Errorf("Failed to close test index: %v", err)
		}
	})
	return ix
}

// NewTestBlobStore creates a blob store rooted in a temp directory.
func NewTestBlobStore(t *testing.T) *blobstore.Store {
	t.Helper()

	blobs, err := blobstore.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create test blob store: %v", err)
	}
	return blobs
}

// NewTestCache creates an attachment cache with the default limits.
func NewTestCache(t *testing.T) *cache.AttachmentCache {
	t.Helper()
	return cache.New(cache.DefaultMaxEntries, cache.DefaultMaxCostBytes)
}
