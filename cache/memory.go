package cache

import (
	"strings"
	"sync"
	"time"
)

type memCacheEntry struct {
	expires  time.Time
	storedAt time.Time
	tags     []string
	bytes    []byte
}

// MemCache is an in-memory CacheProvider backed by a map.
type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]memCacheEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]memCacheEntry),
	}
}

func (m MemCache) Get(key string, softTags []string) (Entry, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(m.db, key)
		return Entry{}, false, nil
	}
	if !matchesSoftTags(entry.tags, softTags) {
		return Entry{}, false, nil
	}
	return Entry{
		Key:      key,
		Expires:  entry.expires,
		StoredAt: entry.storedAt,
		Tags:     entry.tags,
		Bytes:    entry.bytes,
	}, true, nil
}

func (m MemCache) Put(key string, expires time.Time, tags []string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = memCacheEntry{
		expires:  expires,
		storedAt: time.Now(),
		tags:     dedupeTags(tags),
		bytes:    bytes,
	}
	return nil
}

func (m MemCache) GetExpiration(key string) (time.Time, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return entry.expires, true, nil
}

func (m MemCache) UpdateTags(key string, tags []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return nil
	}
	entry.tags = dedupeTags(tags)
	m.db[key] = entry
	return nil
}

func (m MemCache) RefreshTags(key string, tags []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return nil
	}
	entry.tags = dedupeTags(append(entry.tags, tags...))
	m.db[key] = entry
	return nil
}

func (m MemCache) PurgeTag(tag string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	purged := make([]string, 0)
	for key, entry := range m.db {
		for _, t := range entry.tags {
			if t == tag {
				delete(m.db, key)
				purged = append(purged, key)
				break
			}
		}
	}
	return purged, nil
}

func (m MemCache) PurgePrefix(prefix string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	purged := make([]string, 0)
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			delete(m.db, key)
			purged = append(purged, key)
		}
	}
	return purged, nil
}

func (m MemCache) Purge(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

func (m MemCache) Oldest() (string, time.Time, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range m.db {
		if entry.expires.IsZero() {
			continue
		}
		if oldestKey == "" || entry.expires.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expires
		}
	}
	return oldestKey, oldestTime, nil
}
