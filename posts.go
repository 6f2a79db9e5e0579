package cachedemo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DuncanSchouten/cdn-cache-demo/content"
	"github.com/DuncanSchouten/cdn-cache-demo/fetchcache"
)

type postsPayload struct {
	Data          json.RawMessage `json:"data"`
	CacheStrategy string          `json:"cache_strategy"`
	DurationMS    int64           `json:"duration_ms"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Tags          []string        `json:"tags,omitempty"`
}

// handlePosts serves the post list through one fetch-caching strategy.
// The response itself is always marked no-store: what is being
// demonstrated is the origin-side fetch cache, not intermediary caching.
func (s *Server) handlePosts(key string, st fetchcache.Strategy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		res, err := s.fetcher.Do(r.Context(), key, st, s.fetchPosts)
		if err != nil {
			s.log.Error().Err(err).Str("strategy", string(st.Mode)).Msg("Could not fetch posts")
			setNoStoreHeaders(w.Header())
			writeJSON(w, http.StatusInternalServerError, errorPayload{
				Error:         "could not fetch posts",
				CacheStrategy: string(st.Mode),
				DurationMS:    time.Since(start).Milliseconds(),
			})
			return
		}
		fetchedAt := res.StoredAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now()
		}
		setNoStoreHeaders(w.Header())
		writeJSON(w, http.StatusOK, postsPayload{
			Data:          res.Data,
			CacheStrategy: string(st.Mode),
			DurationMS:    time.Since(start).Milliseconds(),
			FetchedAt:     fetchedAt.UTC(),
			Tags:          st.Tags,
		})
	}
}

// fetchPosts produces the display-ready post list payload.
func (s *Server) fetchPosts(ctx context.Context) ([]byte, error) {
	items, err := s.source.List(ctx)
	if err != nil {
		return nil, err
	}
	authors, err := s.source.Authors(ctx)
	if err != nil {
		return nil, err
	}
	display := content.Display(items, authors)
	if s.cfg.PostLimit > 0 && len(display) > s.cfg.PostLimit {
		display = display[:s.cfg.PostLimit]
	}
	return json.Marshal(display)
}
