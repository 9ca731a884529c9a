package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) *CacheDB {
	t.Helper()

	c, err := Open(filepath.Join(t.TempDir(), "covers"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCreatesDirectoryAndIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Equal(t, filepath.Join(dir, IndexFile), c.Path())
	_, err = os.Stat(c.Path())
	assert.NoError(t, err)
}

func TestCoverEntryRoundTrip(t *testing.T) {
	c := setupTestCache(t)

	_, found, err := c.GetCover("1025325277")
	require.NoError(t, err)
	assert.False(t, found)

	fetched := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, c.PutCover(CoverEntry{
		NativeID:    "1025325277",
		ContentHash: "abc123",
		SourceURL:   "https://covers.test/1025325277",
		Size:        2048,
		FetchedAt:   fetched,
	}))

	got, found, err := c.GetCover("1025325277")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Equal(t, "https://covers.test/1025325277", got.SourceURL)
	assert.EqualValues(t, 2048, got.Size)
	assert.True(t, fetched.Equal(got.FetchedAt), "fetched_at %v", got.FetchedAt)
}

func TestPutCoverReplaces(t *testing.T) {
	c := setupTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.PutCover(CoverEntry{NativeID: "1", ContentHash: "old", SourceURL: "u1", FetchedAt: now}))
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "1", ContentHash: "new", SourceURL: "u2", FetchedAt: now}))

	got, _, err := c.GetCover("1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ContentHash)

	entries, err := c.ListCovers()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdateCoverSourceKeepsHash(t *testing.T) {
	c := setupTestCache(t)
	fetched := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "1", ContentHash: "h", SourceURL: "old", FetchedAt: fetched}))

	require.NoError(t, c.UpdateCoverSource("1", "new"))

	got, _, err := c.GetCover("1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.SourceURL)
	assert.Equal(t, "h", got.ContentHash)
	assert.True(t, fetched.Equal(got.FetchedAt))
}

func TestHashInUse(t *testing.T) {
	c := setupTestCache(t)
	now := time.Now().UTC()
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "1", ContentHash: "shared", SourceURL: "a", FetchedAt: now}))
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "2", ContentHash: "shared", SourceURL: "b", FetchedAt: now}))

	inUse, err := c.HashInUse("shared")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = c.HashInUse("other")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestListCoversOrdered(t *testing.T) {
	c := setupTestCache(t)
	now := time.Now().UTC()
	for _, id := range []string{"3", "1", "2"} {
		require.NoError(t, c.PutCover(CoverEntry{NativeID: id, ContentHash: "h" + id, SourceURL: id, FetchedAt: now}))
	}

	entries, err := c.ListCovers()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "1", entries[0].NativeID)
	assert.Equal(t, "3", entries[2].NativeID)
}

func TestClearAll(t *testing.T) {
	c := setupTestCache(t)
	now := time.Now().UTC()
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "1", ContentHash: "a", SourceURL: "a", FetchedAt: now}))
	require.NoError(t, c.PutCover(CoverEntry{NativeID: "2", ContentHash: "b", SourceURL: "b", FetchedAt: now}))

	n, err := c.ClearAll(CoverIndexTable)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	entries, err := c.ListCovers()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearAllRejectsUnknownTable(t *testing.T) {
	c := setupTestCache(t)

	_, err := c.ClearAll("cover_index; DROP TABLE cover_index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cache table name")
}
