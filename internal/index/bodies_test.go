package index_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailloft/mailloft/internal/models"
	"github.com/mailloft/mailloft/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestBodyRoundTrip(t *testing.T) {
	ix := testutil.NewTestIndex(t)
	ctx := context.Background()

	processed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	body := models.MessageBody{
		AccountID:        "acct",
		Folder:           "INBOX",
		UID:              1,
		Text:             strPtr("plain text"),
		HTML:             strPtr("<p>html</p>"),
		HasAttachments:   true,
		ContentType:      "multipart/mixed",
		Charset:          "utf-8",
		TransferEncoding: "quoted-printable",
		IsMultipart:      true,
		RawSize:          1234,
		Raw:              strPtr("raw bytes"),
		ProcessedAt:      &processed,
	}
	require.NoError(t, ix.UpsertRawBody(ctx, body))

	got, err := ix.Body(ctx, "acct", "INBOX", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "plain text", *got.Text)
	assert.Equal(t, "<p>html</p>", *got.HTML)
	assert.True(t, got.HasAttachments)
	assert.True(t, got.IsMultipart)
	assert.Equal(t, int64(1234), got.RawSize)
	assert.Equal(t, processed.Unix(), got.ProcessedAt.Unix())
}

func TestBodyAbsenceIsNil(t *testing.T) {
	ix := testutil.NewTestIndex(t)

	got, err := ix.Body(context.Background(), "acct", "INBOX", 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRawOnlyBody(t *testing.T) {
	ix := testutil.NewTestIndex(t)
	ctx := context.Background()

	// Raw-first write: no text/html yet, no processing timestamp.
	body := models.MessageBody{
		AccountID: "acct", Folder: "INBOX", UID: 2,
		Raw: strPtr("unprocessed"), RawSize: 11,
	}
	require.NoError(t, ix.UpsertRawBody(ctx, body))

	got, err := ix.Body(ctx, "acct", "INBOX", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Text)
	assert.Nil(t, got.HTML)
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, "unprocessed", *got.Raw)
}

func TestMissingBodyUIDs(t *testing.T) {
	ix := testutil.NewTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.UpsertHeaders(ctx, []models.MessageHeader{
		{AccountID: "acct", Folder: "INBOX", UID: 1},
		{AccountID: "acct", Folder: "INBOX", UID: 2},
		{AccountID: "acct", Folder: "INBOX", UID: 3},
	}))
	require.NoError(t, ix.UpsertRawBody(ctx, models.MessageBody{
		AccountID: "acct", Folder: "INBOX", UID: 1, Raw: strPtr("raw"),
	}))

	missing, err := ix.MissingBodyUIDs(ctx, "acct", "INBOX", []uint32{1, 2, 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, missing)
}

func TestMissingBodyUIDsEmptyInput(t *testing.T) {
	ix := testutil.NewTestIndex(t)

	missing, err := ix.MissingBodyUIDs(context.Background(), "acct", "INBOX", nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestUpsertRawBodyReplacesRow(t *testing.T) {
	ix := testutil.NewTestIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.UpsertRawBody(ctx, models.MessageBody{
		AccountID: "acct", Folder: "INBOX", UID: 1, Text: strPtr("old"),
	}))
	// This layer replaces wholesale; any merge is the caller's job.
	require.NoError(t, ix.UpsertRawBody(ctx, models.MessageBody{
		AccountID: "acct", Folder: "INBOX", UID: 1, HTML: strPtr("<p>new</p>"),
	}))

	got, err := ix.Body(ctx, "acct", "INBOX", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Text)
	assert.Equal(t, "<p>new</p>", *got.HTML)
}
