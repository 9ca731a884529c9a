// Package cover downloads cover images and keeps them in a persistent,
// content-addressed disk cache keyed by native id.
package cover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lepinkainen/qidianmeta/internal/book"
	"github.com/lepinkainen/qidianmeta/internal/cache"
	"github.com/lepinkainen/qidianmeta/internal/identifier"
	_ "golang.org/x/image/webp"
)

const blobDir = "blobs"

// ErrInvalidImage is returned when downloaded bytes do not decode as an image.
var ErrInvalidImage = errors.New("downloaded cover is not a valid image")

// Downloader fetches the raw bytes behind a cover URL.
type Downloader interface {
	DownloadCover(ctx context.Context, url string) ([]byte, error)
}

// Cache is the cover cache. Reads are unrestricted; downloads and writes for
// one native id are serialized, different ids proceed independently.
type Cache struct {
	dir        string
	index      *cache.CacheDB
	downloader Downloader
	now        func() time.Time

	locks keyedMutex
	// blobLocks guards a blob between writing it and the index update that
	// references it, against a concurrent release of the same hash.
	blobLocks keyedMutex
	// afterBlobWrite runs once the blob is on disk, before the index update.
	afterBlobWrite func(nativeID string)
	// clearMu is held shared by Get and exclusively by Clear.
	clearMu sync.RWMutex
}

// New opens the cache stored under dir.
func New(dir string, downloader Downloader) (*Cache, error) {
	index, err := cache.Open(dir)
	if err != nil {
		return nil, err
	}
	return &Cache{
		dir:        dir,
		index:      index,
		downloader: downloader,
		now:        time.Now,
	}, nil
}

// Close closes the index database.
func (c *Cache) Close() error {
	return c.index.Close()
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns the cover of nativeID. A cached entry fetched from the same
// coverURL is returned without network access. When coverURL changed, the
// image is downloaded again and the stored blob is replaced only if the
// content hash differs.
func (c *Cache) Get(ctx context.Context, nativeID, coverURL string) (*book.CoverAsset, error) {
	if err := identifier.Validate(nativeID); err != nil {
		return nil, err
	}
	if coverURL == "" {
		return nil, fmt.Errorf("no cover url for %s", nativeID)
	}

	c.clearMu.RLock()
	defer c.clearMu.RUnlock()

	unlock := c.locks.Lock(nativeID)
	defer unlock()

	entry, found, err := c.index.GetCover(nativeID)
	if err != nil {
		return nil, err
	}

	if found && entry.SourceURL == coverURL {
		data, err := c.readBlob(entry.ContentHash)
		if err == nil {
			slog.Debug("cover cache hit", "native_id", nativeID)
			return assetFrom(entry, data), nil
		}
		slog.Warn("cached cover unreadable, downloading again", "native_id", nativeID, "error", err)
	}

	slog.Debug("cover cache miss", "native_id", nativeID, "url", coverURL)
	data, err := c.downloader.DownloadCover(ctx, coverURL)
	if err != nil {
		return nil, fmt.Errorf("downloading cover for %s: %w", nativeID, err)
	}
	if err := validateImage(data); err != nil {
		return nil, fmt.Errorf("cover for %s from %s: %w", nativeID, coverURL, err)
	}

	hash := contentHash(data)
	if found && entry.ContentHash == hash {
		if err := c.storeBlob(nativeID, hash, data, func() error {
			return c.index.UpdateCoverSource(nativeID, coverURL)
		}); err != nil {
			return nil, err
		}
		slog.Debug("cover unchanged", "native_id", nativeID, "hash", hash)
		entry.SourceURL = coverURL
		return assetFrom(entry, data), nil
	}

	fresh := cache.CoverEntry{
		NativeID:    nativeID,
		ContentHash: hash,
		SourceURL:   coverURL,
		Size:        int64(len(data)),
		FetchedAt:   c.now().UTC(),
	}
	if err := c.storeBlob(nativeID, hash, data, func() error {
		return c.index.PutCover(fresh)
	}); err != nil {
		return nil, err
	}
	if found {
		c.releaseBlob(entry.ContentHash)
	}

	slog.Debug("cover cached", "native_id", nativeID, "hash", hash, "bytes", len(data))
	return assetFrom(fresh, data), nil
}

// Lookup returns the cached cover of nativeID without any network access.
func (c *Cache) Lookup(nativeID string) (*book.CoverAsset, bool, error) {
	entry, found, err := c.index.GetCover(nativeID)
	if err != nil || !found {
		return nil, false, err
	}
	data, err := c.readBlob(entry.ContentHash)
	if err != nil {
		return nil, false, err
	}
	return assetFrom(entry, data), true, nil
}

// Entries lists the index without loading any blob.
func (c *Cache) Entries() ([]cache.CoverEntry, error) {
	return c.index.ListCovers()
}

// Clear evicts every cached cover and returns how many entries were removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	n, err := c.index.ClearAll(cache.CoverIndexTable)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(filepath.Join(c.dir, blobDir)); err != nil {
		return n, fmt.Errorf("removing cover blobs: %w", err)
	}

	slog.Info("cover cache cleared", "entries", n)
	return n, nil
}

// blobPath shards blobs by the first two hex digits of their hash.
func (c *Cache) blobPath(hash string) string {
	return filepath.Join(c.dir, blobDir, hash[:2], hash)
}

func (c *Cache) readBlob(hash string) ([]byte, error) {
	data, err := os.ReadFile(c.blobPath(hash))
	if err != nil {
		return nil, err
	}
	if got := contentHash(data); got != hash {
		return nil, fmt.Errorf("blob %s has hash %s", hash, got)
	}
	return data, nil
}

// storeBlob writes the blob for hash and runs record while holding the hash
// lock, so the blob cannot be released before the index references it.
func (c *Cache) storeBlob(nativeID, hash string, data []byte, record func() error) error {
	unlock := c.blobLocks.Lock(hash)
	defer unlock()

	if err := c.writeBlob(hash, data); err != nil {
		return err
	}
	if c.afterBlobWrite != nil {
		c.afterBlobWrite(nativeID)
	}
	return record()
}

// writeBlob stores data under its hash. An existing blob already holds the same bytes.
func (c *Cache) writeBlob(hash string, data []byte) error {
	path := c.blobPath(hash)
	if existing, err := os.ReadFile(path); err == nil && contentHash(existing) == hash {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating blob: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return nil
}

// releaseBlob deletes the blob for hash once no entry references it.
func (c *Cache) releaseBlob(hash string) {
	unlock := c.blobLocks.Lock(hash)
	defer unlock()

	inUse, err := c.index.HashInUse(hash)
	if err != nil {
		slog.Warn("checking cover blob references", "hash", hash, "error", err)
		return
	}
	if inUse {
		return
	}
	if err := os.Remove(c.blobPath(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("removing stale cover blob", "hash", hash, "error", err)
	}
}

func assetFrom(e cache.CoverEntry, data []byte) *book.CoverAsset {
	return &book.CoverAsset{
		NativeID:    e.NativeID,
		ContentHash: e.ContentHash,
		Bytes:       data,
		FetchedAt:   e.FetchedAt,
		SourceURL:   e.SourceURL,
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateImage(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidImage
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return nil
}
