// Package cache is the SQLite index behind the cover cache: which content
// hash each native id resolved to, where it came from and when.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// IndexFile is the index database name inside the cache directory.
const IndexFile = "index.db"

// CoverEntry is one cover_index row.
type CoverEntry struct {
	NativeID    string
	ContentHash string
	SourceURL   string
	Size        int64
	FetchedAt   time.Time
}

// CacheDB manages the SQLite database connection for caching
type CacheDB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens (creating if needed) the index database in dir and makes sure
// all tables exist.
func Open(dir string) (*CacheDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c, err := NewCacheDB(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}

	for _, schema := range AllCacheSchemas {
		if err := c.CreateTable(schema); err != nil {
			closeErr := c.Close()
			return nil, errors.Join(fmt.Errorf("failed to create cache table: %w", err), closeErr)
		}
	}
	return c, nil
}

// NewCacheDB creates a new CacheDB instance and opens the database connection
func NewCacheDB(dbPath string) (*CacheDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	return &CacheDB{
		db:   db,
		path: dbPath,
	}, nil
}

// Path returns the database file path.
func (c *CacheDB) Path() string {
	return c.path
}

// CreateTable creates a table using the provided schema
func (c *CacheDB) CreateTable(schema string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *CacheDB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// GetCover returns the index entry for nativeID and whether one exists.
func (c *CacheDB) GetCover(nativeID string) (CoverEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry := CoverEntry{NativeID: nativeID}
	err := c.db.QueryRow(`
		SELECT content_hash, source_url, size, fetched_at
		FROM cover_index
		WHERE native_id = ?
	`, nativeID).Scan(&entry.ContentHash, &entry.SourceURL, &entry.Size, &entry.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CoverEntry{}, false, nil
	}
	if err != nil {
		return CoverEntry{}, false, fmt.Errorf("failed to query cover index: %w", err)
	}
	return entry, true, nil
}

// PutCover inserts or replaces the entry for e.NativeID.
func (c *CacheDB) PutCover(e CoverEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO cover_index (native_id, content_hash, source_url, size, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.NativeID, e.ContentHash, e.SourceURL, e.Size, e.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store cover index entry: %w", err)
	}
	return nil
}

// UpdateCoverSource records a new source URL for an entry whose bytes did not change.
func (c *CacheDB) UpdateCoverSource(nativeID, sourceURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`UPDATE cover_index SET source_url = ? WHERE native_id = ?`, sourceURL, nativeID)
	if err != nil {
		return fmt.Errorf("failed to update cover source: %w", err)
	}
	return nil
}

// HashInUse reports whether any entry still references hash.
func (c *CacheDB) HashInUse(hash string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var exists int
	err := c.db.QueryRow(`SELECT 1 FROM cover_index WHERE content_hash = ? LIMIT 1`, hash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query cover index: %w", err)
	}
	return true, nil
}

// ListCovers returns every entry ordered by native id.
func (c *CacheDB) ListCovers() ([]CoverEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT native_id, content_hash, source_url, size, fetched_at
		FROM cover_index
		ORDER BY native_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cover index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []CoverEntry
	for rows.Next() {
		var e CoverEntry
		if err := rows.Scan(&e.NativeID, &e.ContentHash, &e.SourceURL, &e.Size, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cover index: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearAll deletes every row of tableName and returns how many were removed.
// tableName must be in ValidCacheTableNames.
func (c *CacheDB) ClearAll(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s", tableName)
	result, err := c.db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache table cleared", "table", tableName, "rows_deleted", rowsAffected)
	return rowsAffected, nil
}

// validateTableName checks if the table name is in the whitelist
// to prevent SQL injection attacks
func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}
