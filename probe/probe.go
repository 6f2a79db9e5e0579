// Package probe drives the surrogate probe workflow against a running
// demo server: poll the probe endpoint until the CDN answers from
// cache, trigger a tag revalidation, then re-poll until the origin
// demonstrably ran again.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// State is a step in the probe workflow.
type State string

const (
	StateIdle         State = "idle"
	StateProbing      State = "probing"
	StateProbed       State = "probed"
	StateRevalidating State = "revalidating"
	StateVerifying    State = "verifying"
	StateVerified     State = "verified"
)

// Tag is the surrogate tag the probe endpoint is cached under.
const Tag = "cdnprobe"

// Observation is one look at the probe endpoint.
type Observation struct {
	GeneratedAt time.Time `json:"generated_at"`
	Nonce       string    `json:"nonce"`
	// Age is the CDN age header, 0 when absent or unparsable.
	Age int `json:"-"`
}

// VerifyResult reports the outcome of a verification run.
type VerifyResult struct {
	Verified    bool
	Observation Observation
	Message     string
}

// Client walks the probe state machine.
type Client struct {
	// BaseURL of the demo server, without trailing slash.
	BaseURL string
	// Attempts bounds each polling loop.
	Attempts int
	// Delay is the fixed pause between polls.
	Delay time.Duration
	// OnTransition is called on every state change, if set.
	OnTransition func(State)

	HTTP *http.Client
	Log  zerolog.Logger

	state    State
	baseline Observation
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:  baseURL,
		Attempts: 5,
		Delay:    2 * time.Second,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Log:      logger,
		state:    StateIdle,
	}
}

// State returns the current state.
func (c *Client) State() State {
	return c.state
}

// Baseline returns the observation recorded by the last Probe.
func (c *Client) Baseline() Observation {
	return c.baseline
}

// Probe polls the probe endpoint up to Attempts times, stopping early
// once the observed CDN age becomes positive (evidence the edge served
// from cache). The last observation becomes the verification baseline.
func (c *Client) Probe(ctx context.Context) (Observation, error) {
	c.transition(StateProbing)
	var obs Observation
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		var err error
		obs, err = c.observe(ctx)
		if err != nil {
			c.transition(StateIdle)
			return Observation{}, err
		}
		c.Log.Debug().
			Int("attempt", attempt).
			Int("age", obs.Age).
			Str("nonce", obs.Nonce).
			Msg("Probe observation")
		if obs.Age > 0 {
			break
		}
		if attempt < c.Attempts {
			if err := sleep(ctx, c.Delay); err != nil {
				c.transition(StateIdle)
				return Observation{}, err
			}
		}
	}
	c.baseline = obs
	c.transition(StateProbed)
	return obs, nil
}

// Revalidate triggers a tag revalidation for the probe tag.
func (c *Client) Revalidate(ctx context.Context) error {
	c.transition(StateRevalidating)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/revalidate?tag="+Tag, nil)
	if err != nil {
		return err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		c.transition(StateProbed)
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		c.transition(StateProbed)
		return fmt.Errorf("probe: revalidate returned status %d", res.StatusCode)
	}
	c.transition(StateProbed)
	return nil
}

// Verify re-polls up to Attempts times, succeeding the moment the
// observed generation timestamp moves past the baseline. Exhausting
// all attempts is reported as a soft outcome, not an error.
func (c *Client) Verify(ctx context.Context) (VerifyResult, error) {
	c.transition(StateVerifying)
	var obs Observation
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		var err error
		obs, err = c.observe(ctx)
		if err != nil {
			c.transition(StateProbed)
			return VerifyResult{}, err
		}
		if obs.GeneratedAt.After(c.baseline.GeneratedAt) {
			c.transition(StateVerified)
			return VerifyResult{Verified: true, Observation: obs}, nil
		}
		if attempt < c.Attempts {
			if err := sleep(ctx, c.Delay); err != nil {
				c.transition(StateProbed)
				return VerifyResult{}, err
			}
		}
	}
	c.transition(StateProbed)
	return VerifyResult{
		Observation: obs,
		Message:     "purge may not have propagated yet",
	}, nil
}

func (c *Client) observe(ctx context.Context) (Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/cdnprobe", nil)
	if err != nil {
		return Observation{}, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return Observation{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("probe: endpoint returned status %d", res.StatusCode)
	}
	var obs Observation
	if err := json.NewDecoder(res.Body).Decode(&obs); err != nil {
		return Observation{}, err
	}
	if age, err := strconv.Atoi(res.Header.Get("Age")); err == nil {
		obs.Age = age
	}
	return obs, nil
}

func (c *Client) transition(next State) {
	if c.state == next {
		return
	}
	c.Log.Trace().Str("from", string(c.state)).Str("to", string(next)).Msg("Probe state change")
	c.state = next
	if c.OnTransition != nil {
		c.OnTransition(next)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
