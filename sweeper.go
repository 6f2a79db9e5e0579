package cachedemo

import (
	"context"
	"time"
)

// sweepExpired runs an infinite loop purging expired entries, one at a
// time. It queries the cache for the entry expiring soonest; if that
// entry is already past its expiry it is purged, otherwise the loop
// sleeps for the sweep interval.
func (s *Server) sweepExpired(ctx context.Context) {
	if s.cfg.SweepInterval == 0 {
		return
	}
	s.log.Info().Msgf("Starting cache sweep loop with interval %s", s.cfg.SweepInterval)
	for {
		if ctx.Err() != nil {
			return
		}
		key, expiry, err := s.cache.Oldest()
		if err != nil {
			s.log.Error().Err(err).Msg("Could not get oldest entry")
			if !sleepCtx(ctx, s.cfg.SweepInterval) {
				return
			}
			continue
		}
		if key != "" && time.Now().After(expiry) {
			s.log.Trace().Str("key", key).Time("expiry", expiry).Msg("Sweeping expired entry")
			s.cache.Purge(key)
		} else {
			if !sleepCtx(ctx, s.cfg.SweepInterval) {
				return
			}
		}
	}
}

// sleepCtx sleeps for the given duration, returning false if the
// context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
