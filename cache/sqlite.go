package cache

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteCache is a CacheProvider backed by a sqlite database.
// Tags live in a separate table keyed by (key, tag) so that purging
// by tag is a single indexed lookup.
type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		expires INTEGER,
		stored_at INTEGER,
		bytes BLOB
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache_tags (
		key TEXT,
		tag TEXT,
		PRIMARY KEY (key, tag)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS tag_idx ON cache_tags (tag)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}

func (s SQLiteCache) Get(key string, softTags []string) (Entry, bool, error) {
	query := "SELECT expires, stored_at, bytes FROM cache WHERE key = ?"
	args := []interface{}{key}
	if len(softTags) > 0 {
		query += ` AND EXISTS (SELECT 1 FROM cache_tags
			WHERE cache_tags.key = cache.key
			AND cache_tags.tag IN (?` + strings.Repeat(",?", len(softTags)-1) + "))"
		for _, tag := range softTags {
			args = append(args, tag)
		}
	}
	var expires, storedAt int64
	var bytes []byte
	err := s.db.QueryRow(query, args...).Scan(&expires, &storedAt, &bytes)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if expires > 0 && time.Now().After(time.Unix(expires, 0)) {
		s.Purge(key)
		return Entry{}, false, nil
	}
	tags, err := s.tags(key)
	if err != nil {
		return Entry{}, false, err
	}
	entry := Entry{
		Key:      key,
		StoredAt: time.Unix(storedAt, 0),
		Tags:     tags,
		Bytes:    bytes,
	}
	if expires > 0 {
		entry.Expires = time.Unix(expires, 0)
	}
	return entry, true, nil
}

func (s SQLiteCache) Put(key string, expires time.Time, tags []string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	var exp int64
	if !expires.IsZero() {
		exp = expires.Unix()
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache (key, expires, stored_at, bytes) VALUES (?, ?, ?, ?)",
		key, exp, time.Now().Unix(), bytes)
	if err != nil {
		return err
	}
	return s.replaceTags(key, dedupeTags(tags))
}

func (s SQLiteCache) GetExpiration(key string) (time.Time, bool, error) {
	var expires int64
	err := s.db.QueryRow("SELECT expires FROM cache WHERE key = ?", key).Scan(&expires)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if expires == 0 {
		return time.Time{}, true, nil
	}
	return time.Unix(expires, 0), true, nil
}

func (s SQLiteCache) UpdateTags(key string, tags []string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	return s.replaceTags(key, dedupeTags(tags))
}

func (s SQLiteCache) RefreshTags(key string, tags []string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	for _, tag := range dedupeTags(tags) {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO cache_tags (key, tag) VALUES (?, ?)", key, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s SQLiteCache) PurgeTag(tag string) ([]string, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	rows, err := s.db.Query("SELECT key FROM cache_tags WHERE tag = ?", tag)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return keys, err
		}
		keys = append(keys, key)
	}
	rows.Close()
	for _, key := range keys {
		if err := s.purgeLocked(key); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func (s SQLiteCache) PurgePrefix(prefix string) ([]string, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	rows, err := s.db.Query("SELECT key FROM cache WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return keys, err
		}
		keys = append(keys, key)
	}
	rows.Close()
	for _, key := range keys {
		if err := s.purgeLocked(key); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func (s SQLiteCache) Purge(key string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	// best effort, the entry will expire anyway
	_ = s.purgeLocked(key)
}

func (s SQLiteCache) Oldest() (string, time.Time, error) {
	var key string
	var expires int64
	err := s.db.QueryRow(
		"SELECT key, expires FROM cache WHERE expires > 0 ORDER BY expires ASC LIMIT 1",
	).Scan(&key, &expires)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return key, time.Unix(expires, 0), nil
}

func (s SQLiteCache) tags(key string) ([]string, error) {
	rows, err := s.db.Query("SELECT tag FROM cache_tags WHERE key = ? ORDER BY tag", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return tags, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// replaceTags swaps the tag set for a key. Callers must hold writeMutex.
func (s SQLiteCache) replaceTags(key string, tags []string) error {
	if _, err := s.db.Exec("DELETE FROM cache_tags WHERE key = ?", key); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := s.db.Exec(
			"INSERT OR IGNORE INTO cache_tags (key, tag) VALUES (?, ?)", key, tag); err != nil {
			return err
		}
	}
	return nil
}

// purgeLocked removes an entry and its tags. Callers must hold writeMutex.
func (s SQLiteCache) purgeLocked(key string) error {
	if _, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM cache_tags WHERE key = ?", key)
	return err
}
