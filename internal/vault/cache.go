package vault

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/obsbridge/internal/types"
)

// ContentHash returns the digest used as the cache key component for file
// content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Cache is the sqlite-backed parse cache. A hit returns the prior parse
// result without re-reading; entries are invalidated when any of (path,
// size, mtime, content hash) differs.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS parse_cache (
	path   TEXT PRIMARY KEY,
	size   INTEGER NOT NULL,
	mtime  INTEGER NOT NULL,
	digest TEXT NOT NULL,
	tasks  TEXT NOT NULL
);
`

// OpenCache opens (or creates) the parse cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening parse cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing parse cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the cache database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached tasks for the file iff every key component
// matches.
func (c *Cache) Get(path string, size int64, mtime time.Time, digest string) ([]*types.Task, bool) {
	var (
		gotSize   int64
		gotMtime  int64
		gotDigest string
		tasksJSON string
	)
	row := c.db.QueryRow(`SELECT size, mtime, digest, tasks FROM parse_cache WHERE path = ?`, path)
	if err := row.Scan(&gotSize, &gotMtime, &gotDigest, &tasksJSON); err != nil {
		return nil, false
	}
	if gotSize != size || gotMtime != mtime.UnixNano() || gotDigest != digest {
		return nil, false
	}
	var tasks []*types.Task
	if err := json.Unmarshal([]byte(tasksJSON), &tasks); err != nil {
		return nil, false
	}
	return tasks, true
}

// Put stores the parse result for the file, replacing any prior entry.
func (c *Cache) Put(path string, size int64, mtime time.Time, digest string, tasks []*types.Task) {
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_, _ = c.db.Exec(
		`INSERT OR REPLACE INTO parse_cache (path, size, mtime, digest, tasks) VALUES (?, ?, ?, ?, ?)`,
		path, size, mtime.UnixNano(), digest, string(data),
	)
}

// Invalidate drops the entry for one file. The watch command calls this
// when fsnotify reports a write.
func (c *Cache) Invalidate(path string) {
	_, _ = c.db.Exec(`DELETE FROM parse_cache WHERE path = ?`, path)
}
