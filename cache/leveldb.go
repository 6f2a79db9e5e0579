package cache

import (
	"bytes"
	"encoding/gob"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	levelEntryPrefix = "e:"
	levelTagPrefix   = "t:"
	// separates tag from key in index entries, tags never contain it
	levelTagSep = "\x00"
)

// levelEntry is the gob-encoded on-disk representation of an entry.
type levelEntry struct {
	Expires  time.Time
	StoredAt time.Time
	Tags     []string
	Bytes    []byte
}

// LevelCache is a CacheProvider backed by a leveldb database on disk.
// Entries live under an "e:" key prefix, and a "t:<tag>\x00<key>" index
// makes purging by tag a prefix scan.
type LevelCache struct {
	db    *leveldb.DB
	mutex *sync.Mutex
}

func NewLevelCache(path string) (LevelCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return LevelCache{}, err
	}
	return LevelCache{
		db:    db,
		mutex: &sync.Mutex{},
	}, nil
}

func (l LevelCache) Close() error {
	return l.db.Close()
}

func (l LevelCache) Get(key string, softTags []string) (Entry, bool, error) {
	raw, err := l.db.Get([]byte(levelEntryPrefix+key), nil)
	if err == leveldb.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var le levelEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&le); err != nil {
		return Entry{}, false, err
	}
	if !le.Expires.IsZero() && time.Now().After(le.Expires) {
		l.Purge(key)
		return Entry{}, false, nil
	}
	if !matchesSoftTags(le.Tags, softTags) {
		return Entry{}, false, nil
	}
	return Entry{
		Key:      key,
		Expires:  le.Expires,
		StoredAt: le.StoredAt,
		Tags:     le.Tags,
		Bytes:    le.Bytes,
	}, true, nil
}

func (l LevelCache) Put(key string, expires time.Time, tags []string, payload []byte) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.putLocked(key, levelEntry{
		Expires:  expires,
		StoredAt: time.Now(),
		Tags:     dedupeTags(tags),
		Bytes:    payload,
	})
}

func (l LevelCache) GetExpiration(key string) (time.Time, bool, error) {
	le, ok, err := l.load(key)
	if !ok || err != nil {
		return time.Time{}, false, err
	}
	return le.Expires, true, nil
}

func (l LevelCache) UpdateTags(key string, tags []string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	le, ok, err := l.load(key)
	if !ok || err != nil {
		return err
	}
	if err := l.deleteTagIndex(key, le.Tags, nil); err != nil {
		return err
	}
	le.Tags = dedupeTags(tags)
	return l.putLocked(key, le)
}

func (l LevelCache) RefreshTags(key string, tags []string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	le, ok, err := l.load(key)
	if !ok || err != nil {
		return err
	}
	le.Tags = dedupeTags(append(le.Tags, tags...))
	return l.putLocked(key, le)
}

func (l LevelCache) PurgeTag(tag string) ([]string, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	prefix := []byte(levelTagPrefix + tag + levelTagSep)
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	keys := make([]string, 0)
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return keys, err
	}
	for _, key := range keys {
		if err := l.purgeLocked(key); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func (l LevelCache) PurgePrefix(prefix string) ([]string, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	scan := []byte(levelEntryPrefix + prefix)
	it := l.db.NewIterator(util.BytesPrefix(scan), nil)
	keys := make([]string, 0)
	for it.Next() {
		keys = append(keys, strings.TrimPrefix(string(it.Key()), levelEntryPrefix))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return keys, err
	}
	for _, key := range keys {
		if err := l.purgeLocked(key); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

func (l LevelCache) Purge(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_ = l.purgeLocked(key)
}

func (l LevelCache) Oldest() (string, time.Time, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelEntryPrefix)), nil)
	defer it.Release()
	var oldestKey string
	var oldestTime time.Time
	for it.Next() {
		var le levelEntry
		if err := gob.NewDecoder(bytes.NewReader(it.Value())).Decode(&le); err != nil {
			continue
		}
		if le.Expires.IsZero() {
			continue
		}
		if oldestKey == "" || le.Expires.Before(oldestTime) {
			oldestKey = strings.TrimPrefix(string(it.Key()), levelEntryPrefix)
			oldestTime = le.Expires
		}
	}
	return oldestKey, oldestTime, it.Error()
}

func (l LevelCache) load(key string) (levelEntry, bool, error) {
	raw, err := l.db.Get([]byte(levelEntryPrefix+key), nil)
	if err == leveldb.ErrNotFound {
		return levelEntry{}, false, nil
	}
	if err != nil {
		return levelEntry{}, false, err
	}
	var le levelEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&le); err != nil {
		return levelEntry{}, false, err
	}
	return le, true, nil
}

// putLocked writes the entry and its tag index in one batch.
// Callers must hold the mutex.
func (l LevelCache) putLocked(key string, le levelEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(le); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(levelEntryPrefix+key), buf.Bytes())
	for _, tag := range le.Tags {
		batch.Put([]byte(levelTagPrefix+tag+levelTagSep+key), nil)
	}
	return l.db.Write(batch, nil)
}

// purgeLocked removes the entry and its tag index entries.
// Callers must hold the mutex.
func (l LevelCache) purgeLocked(key string) error {
	le, ok, err := l.load(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return l.deleteTagIndex(key, le.Tags, []byte(levelEntryPrefix+key))
}

// deleteTagIndex deletes the index entries for the given tags, and the
// optional extra key, in one batch. Callers must hold the mutex.
func (l LevelCache) deleteTagIndex(key string, tags []string, extra []byte) error {
	batch := new(leveldb.Batch)
	for _, tag := range tags {
		batch.Delete([]byte(levelTagPrefix + tag + levelTagSep + key))
	}
	if extra != nil {
		batch.Delete(extra)
	}
	return l.db.Write(batch, nil)
}
