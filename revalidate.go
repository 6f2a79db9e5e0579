package cachedemo

import (
	"encoding/json"
	"net/http"
	"time"
)

type revalidatePayload struct {
	Revalidated bool      `json:"revalidated"`
	Tag         string    `json:"tag,omitempty"`
	Path        string    `json:"path,omitempty"`
	Now         time.Time `json:"now"`
}

// handleRevalidate invalidates cached entries by tag or by path prefix.
// Path takes precedence when both are given. A tag purge also triggers
// the downstream CDN purge, best effort.
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	path := r.URL.Query().Get("path")
	if r.Method == http.MethodPost && tag == "" && path == "" {
		var body struct {
			Tag string `json:"tag"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			tag = body.Tag
		}
	}
	setNoStoreHeaders(w.Header())

	switch {
	case path != "":
		keys, err := s.cache.PurgePrefix(path)
		if err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Could not purge by path")
			writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "revalidation failed"})
			return
		}
		s.log.Debug().Str("path", path).Strs("purged", keys).Msg("Revalidated by path")
		writeJSON(w, http.StatusOK, revalidatePayload{
			Revalidated: true,
			Path:        path,
			Now:         time.Now().UTC(),
		})
	case tag != "":
		keys, err := s.cache.PurgeTag(tag)
		if err != nil {
			s.log.Error().Err(err).Str("tag", tag).Msg("Could not purge by tag")
			writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "revalidation failed"})
			return
		}
		s.log.Debug().Str("tag", tag).Strs("purged", keys).Msg("Revalidated by tag")
		if err := s.purger.PurgeTags(r.Context(), []string{tag}); err != nil {
			// local purge already happened, the CDN copy will age out
			s.log.Warn().Err(err).Str("tag", tag).Msg("CDN purge failed")
		}
		writeJSON(w, http.StatusOK, revalidatePayload{
			Revalidated: true,
			Tag:         tag,
			Now:         time.Now().UTC(),
		})
	default:
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error: "missing tag or path query parameter",
		})
	}
}
