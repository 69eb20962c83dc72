package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailloft/mailloft/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func testMeta(account, folder string, uid uint32, part string) models.AttachmentMeta {
	return models.AttachmentMeta{
		AccountID: account,
		Folder:    folder,
		UID:       uid,
		PartID:    part,
		Filename:  "file.bin",
		MimeType:  "application/octet-stream",
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("some attachment bytes")
	loc, err := s.Save(ctx, testMeta("acct", "INBOX", 1, "1"), data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), loc.Size)
	assert.Equal(t, filepath.Join("acct", "INBOX-1", "1"), loc.Path)

	got, ok := s.Load(loc.Path)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, testMeta("acct", "INBOX", 1, "1"), []byte("data"))
	require.NoError(t, err)

	err = filepath.Walk(s.Root(), func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		assert.False(t, strings.HasPrefix(info.Name(), ".tmp_"), "leftover temp file: %s", path)
		return nil
	})
	require.NoError(t, err)
}

func TestSaveCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, testMeta("acct", "INBOX", 1, "1"), []byte("data"))
	require.Error(t, err)

	// The canonical path must not exist and no temp debris may remain.
	files, listErr := s.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, files)
}

func TestLocate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, testMeta("acct", "INBOX", 5, "2"), []byte("bytes"))
	require.NoError(t, err)

	loc, ok := s.Locate("acct", "INBOX-5", "2")
	require.True(t, ok)
	assert.Equal(t, int64(5), loc.Size)

	_, ok = s.Locate("acct", "INBOX-5", "3")
	assert.False(t, ok)
}

func TestLoadMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	data, ok := s.Load(filepath.Join("acct", "INBOX-1", "1"))
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestLoadRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Load("../outside")
	assert.False(t, ok)
	assert.ErrorIs(t, s.Delete("../outside"), ErrInvalidPath)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete(filepath.Join("acct", "INBOX-1", "1")))
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, testMeta("alice", "INBOX", 1, "1"), []byte("aaaa"))
	require.NoError(t, err)
	_, err = s.Save(ctx, testMeta("alice", "INBOX", 2, "1"), []byte("bbbbbb"))
	require.NoError(t, err)
	_, err = s.Save(ctx, testMeta("bob", "INBOX", 1, "1"), []byte("cc"))
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalBytes)
	assert.Equal(t, 3, stats.FileCount)
	assert.Equal(t, 2, stats.AccountCount)
}
