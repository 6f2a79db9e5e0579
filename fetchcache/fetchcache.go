// Package fetchcache runs origin fetches through one of the demo's
// fetch-caching strategies: no caching, indefinite caching, timed
// revalidation, or tag-scoped caching.
package fetchcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DuncanSchouten/cdn-cache-demo/cache"
	"github.com/DuncanSchouten/cdn-cache-demo/surrogate"
)

// Mode selects the caching behavior of a fetch.
type Mode string

const (
	// ModeNoStore always executes the fetch, never touching the store.
	ModeNoStore Mode = "no-store"
	// ModeForceCache caches indefinitely; only invalidation refreshes.
	ModeForceCache Mode = "force-cache"
	// ModeRevalidate caches with a fixed time-to-live.
	ModeRevalidate Mode = "revalidate"
	// ModeTagged caches indefinitely under a set of invalidation tags.
	ModeTagged Mode = "tags"
)

// Strategy is a caching directive for a single fetch.
type Strategy struct {
	Mode Mode
	// TTL applies to ModeRevalidate only.
	TTL time.Duration
	// Tags applies to ModeTagged only.
	Tags []string
}

// FetchFunc produces the payload on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is the outcome of a cached fetch.
type Result struct {
	Data     []byte
	Hit      bool
	StoredAt time.Time
}

// Fetcher executes fetches through a cache provider.
type Fetcher struct {
	cache cache.CacheProvider
	log   zerolog.Logger
}

func New(provider cache.CacheProvider, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		cache: provider,
		log:   logger,
	}
}

// Do runs fn through the cache according to the strategy.
// On a cache hit that carries tags, the tags are captured into the
// request's surrogate collector so they end up on the response's
// Surrogate-Key header. Nothing is stored when fn fails.
func (f *Fetcher) Do(ctx context.Context, key string, st Strategy, fn FetchFunc) (Result, error) {
	if st.Mode == ModeNoStore {
		data, err := fn(ctx)
		return Result{Data: data}, err
	}

	entry, ok, err := f.cache.Get(key, nil)
	if err != nil {
		// treat a broken cache read as a miss and refetch
		f.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
	}
	if ok {
		f.log.Trace().Str("key", key).Strs("tags", entry.Tags).Msg("Cache hit")
		if len(entry.Tags) > 0 {
			surrogate.Capture(ctx, entry.Tags...)
		}
		return Result{Data: entry.Bytes, Hit: true, StoredAt: entry.StoredAt}, nil
	}

	data, err := fn(ctx)
	if err != nil {
		return Result{}, err
	}

	var expires time.Time
	if st.Mode == ModeRevalidate && st.TTL > 0 {
		expires = time.Now().Add(st.TTL)
	}
	if err := f.cache.Put(key, expires, st.Tags, data); err != nil {
		f.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
	} else {
		f.log.Trace().Str("key", key).Time("expiry", expires).Strs("tags", st.Tags).Msg("Cache write")
	}
	return Result{Data: data, StoredAt: time.Now()}, nil
}
