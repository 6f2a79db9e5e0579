package cachedemo

import (
	"encoding/json"
	"net/http"
)

// setNoStoreHeaders forbids intermediary caching so the demo client can
// observe the origin's own caching behavior.
func setNoStoreHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorPayload struct {
	Error         string `json:"error"`
	CacheStrategy string `json:"cache_strategy,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}
