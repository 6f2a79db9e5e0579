// Package cdn triggers downstream CDN purges after a local
// invalidation, using the Surrogate-Key purge convention.
package cdn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Purger purges tags from a downstream CDN.
// Purges are best effort: callers log failures but never fail the
// revalidation request over them.
type Purger interface {
	PurgeTags(ctx context.Context, tags []string) error
}

// HTTPPurger issues a PURGE request to a CDN endpoint with the tags in
// a Surrogate-Key header.
type HTTPPurger struct {
	endpoint string
	token    string
	client   *http.Client
	log      zerolog.Logger
}

func NewHTTPPurger(endpoint, token string, logger zerolog.Logger) *HTTPPurger {
	return &HTTPPurger{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger,
	}
}

func (p *HTTPPurger) PurgeTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, "PURGE", p.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Surrogate-Key", strings.Join(tags, " "))
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	p.log.Debug().Strs("tags", tags).Str("endpoint", p.endpoint).Msg("Purging CDN tags")
	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("cdn purge: unexpected status %d", res.StatusCode)
	}
	return nil
}

// NopPurger is used when no CDN endpoint is configured.
type NopPurger struct{}

func (NopPurger) PurgeTags(ctx context.Context, tags []string) error {
	return nil
}
