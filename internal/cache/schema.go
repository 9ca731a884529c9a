package cache

// CoverIndexTable maps each native id to the content hash of its cached cover blob.
const CoverIndexTable = "cover_index"

// CoverIndexSchema defines the cover index. Entries never expire; they go
// away only when the cache is cleared.
const CoverIndexSchema = `
CREATE TABLE IF NOT EXISTS cover_index (
	native_id TEXT PRIMARY KEY NOT NULL,
	content_hash TEXT NOT NULL,
	source_url TEXT NOT NULL,
	size INTEGER NOT NULL,
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cover_index_hash ON cover_index(content_hash);
`

// AllCacheSchemas contains all cache table schemas for initialization
var AllCacheSchemas = []string{
	CoverIndexSchema,
}

// ValidCacheTableNames is the whitelist of table names that may be cleared.
var ValidCacheTableNames = map[string]bool{
	CoverIndexTable: true,
}
