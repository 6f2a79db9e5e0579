package cache

import (
	"time"
)

// CacheProvider is an interface for a tag-aware cache provider.
// It stores and retrieves []byte values together with a set of
// invalidation tags (surrogate keys), and keeps track of expiration
// times of cache entries.
//
// A zero Expires time means the entry never expires.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cached entry for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// If the cache entry has expired, the boolean should be false.
	// (In this case, the cache provider should also purge the entry.)
	// If softTags is non-empty, the entry is only returned if it carries
	// at least one of the given tags.
	Get(key string, softTags []string) (Entry, bool, error)
	// Put stores the given payload in the cache under the given key.
	// It also sets an expiration time and the tag set for the entry.
	// Duplicate tags are collapsed on write.
	Put(key string, expires time.Time, tags []string, bytes []byte) error
	// GetExpiration returns the expiration time of the entry for the
	// given key, along with a boolean indicating if the entry exists.
	GetExpiration(key string) (time.Time, bool, error)
	// UpdateTags replaces the tag set of the entry for the given key.
	UpdateTags(key string, tags []string) error
	// RefreshTags unions the given tags into the entry's tag set.
	RefreshTags(key string, tags []string) error
	// PurgeTag removes all entries carrying the given tag.
	// It returns the keys of the purged entries.
	PurgeTag(tag string) ([]string, error)
	// PurgePrefix removes all entries whose key starts with the given
	// prefix. It returns the keys of the purged entries.
	PurgePrefix(prefix string) ([]string, error)
	// Purge removes the cache entry for the given key.
	Purge(key string)
	// Oldest returns the key and expiration time of the entry with the
	// earliest expiration time. It should not return items where the
	// expiry is zero (i.e. entries that never expire).
	Oldest() (string, time.Time, error)
}

// Entry is a single cache entry together with its metadata.
type Entry struct {
	Key      string
	Expires  time.Time
	StoredAt time.Time
	Tags     []string
	Bytes    []byte
}

// Expired reports whether the entry's expiration time has passed.
// Entries with a zero expiration time never expire.
func (e Entry) Expired(now time.Time) bool {
	return !e.Expires.IsZero() && now.After(e.Expires)
}

// dedupeTags collapses duplicate tags, preserving first-seen order.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	deduped := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		deduped = append(deduped, tag)
	}
	return deduped
}

// matchesSoftTags reports whether the entry tags satisfy the soft tag
// filter. An empty filter matches everything.
func matchesSoftTags(entryTags, softTags []string) bool {
	if len(softTags) == 0 {
		return true
	}
	for _, soft := range softTags {
		for _, tag := range entryTags {
			if tag == soft {
				return true
			}
		}
	}
	return false
}
