package cachedemo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DuncanSchouten/cdn-cache-demo/fetchcache"
	"github.com/DuncanSchouten/cdn-cache-demo/probe"
	"github.com/DuncanSchouten/cdn-cache-demo/surrogate"
)

const probeKey = "/cdnprobe"

// ProbeRecord is regenerated on every origin execution of the probe
// endpoint, so a client can tell a cached response from a fresh one.
type ProbeRecord struct {
	GeneratedAt time.Time `json:"generated_at"`
	Nonce       string    `json:"nonce"`
	Purpose     string    `json:"purpose"`
}

// handleCDNProbe serves the surrogate probe. The record is cached under
// the probe tag, and the tag travels out on the Surrogate-Key header so
// a CDN in front can be purged by tag.
func (s *Server) handleCDNProbe(w http.ResponseWriter, r *http.Request) {
	st := fetchcache.Strategy{Mode: fetchcache.ModeTagged, Tags: []string{probe.Tag}}
	res, err := s.fetcher.Do(r.Context(), probeKey, st, func(ctx context.Context) ([]byte, error) {
		record := ProbeRecord{
			GeneratedAt: time.Now().UTC(),
			Nonce:       uuid.NewString(),
			Purpose:     "surrogate probe",
		}
		return json.Marshal(record)
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Could not produce probe record")
		writeJSON(w, http.StatusInternalServerError, errorPayload{Error: "could not produce probe record"})
		return
	}
	// the tag is known to the handler, so attach it on miss as well
	surrogate.Capture(r.Context(), probe.Tag)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d", s.cfg.SMaxAge))
	w.Write(res.Data)
}
