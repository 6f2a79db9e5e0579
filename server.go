// Package cachedemo is a demo server for HTTP fetch-cache strategies,
// tag-based invalidation, and CDN surrogate-key propagation.
package cachedemo

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/DuncanSchouten/cdn-cache-demo/cache"
	"github.com/DuncanSchouten/cdn-cache-demo/cdn"
	"github.com/DuncanSchouten/cdn-cache-demo/content"
	"github.com/DuncanSchouten/cdn-cache-demo/fetchcache"
	"github.com/DuncanSchouten/cdn-cache-demo/surrogate"
)

// Server wires the demo endpoints to a cache provider, a content
// source, and a downstream CDN purger.
type Server struct {
	cfg     Config
	source  content.Source
	cache   cache.CacheProvider
	fetcher *fetchcache.Fetcher
	purger  cdn.Purger
	log     zerolog.Logger
}

func NewServer(cfg Config, source content.Source, provider cache.CacheProvider, purger cdn.Purger, logger zerolog.Logger) *Server {
	if purger == nil {
		purger = cdn.NopPurger{}
	}
	return &Server{
		cfg:     cfg,
		source:  source,
		cache:   provider,
		fetcher: fetchcache.New(provider, logger),
		purger:  purger,
		log:     logger,
	}
}

// Handler returns the demo server's HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(chimiddleware.Recoverer)
	r.Use(surrogate.Middleware)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)

	r.Get("/posts/no-cache", s.handlePosts("/posts/no-cache",
		fetchcache.Strategy{Mode: fetchcache.ModeNoStore}))
	r.Get("/posts/force-cache", s.handlePosts("/posts/force-cache",
		fetchcache.Strategy{Mode: fetchcache.ModeForceCache}))
	r.Get("/posts/revalidate", s.handlePosts("/posts/revalidate",
		fetchcache.Strategy{Mode: fetchcache.ModeRevalidate, TTL: s.cfg.RevalidateTTL}))
	r.Get("/posts/tagged", s.handlePosts("/posts/tagged",
		fetchcache.Strategy{Mode: fetchcache.ModeTagged, Tags: []string{"posts"}}))

	r.Get("/cdnprobe", s.handleCDNProbe)
	r.Get("/revalidate", s.handleRevalidate)
	r.Post("/revalidate", s.handleRevalidate)

	return r
}

// Run serves HTTP until the context is cancelled.
// It also starts the expired-entry sweeper.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}
	go s.sweepExpired(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Msgf("Listening on %s", s.cfg.Listen)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
