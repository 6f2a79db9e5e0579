package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeEdge mimics a CDN in front of the probe endpoint: the first
// request generates a record, later requests serve it with a growing
// Age header until a revalidation regenerates it.
type fakeEdge struct {
	mu        sync.Mutex
	cached    []byte
	age       int
	generated int
}

func (e *fakeEdge) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cdnprobe", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.cached == nil {
			e.generated++
			record := map[string]interface{}{
				"generated_at": time.Now().UTC(),
				"nonce":        fmt.Sprintf("nonce-%d", e.generated),
				"purpose":      "surrogate probe",
			}
			e.cached, _ = json.Marshal(record)
			e.age = 0
		} else {
			e.age++
		}
		w.Header().Set("Age", fmt.Sprintf("%d", e.age))
		w.Write(e.cached)
	})
	mux.HandleFunc("/revalidate", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tag") != Tag {
			http.Error(w, "unknown tag", http.StatusBadRequest)
			return
		}
		e.mu.Lock()
		e.cached = nil
		e.mu.Unlock()
		w.Write([]byte(`{"revalidated":true}`))
	})
	return mux
}

func newTestClient(url string) *Client {
	c := NewClient(url, zerolog.Nop())
	c.Attempts = 4
	c.Delay = time.Millisecond
	return c
}

func TestProbeStopsEarlyOnPositiveAge(t *testing.T) {
	edge := &fakeEdge{}
	server := httptest.NewServer(edge.handler())
	defer server.Close()
	c := newTestClient(server.URL)

	obs, err := c.Probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if obs.Age <= 0 {
		t.Fatalf("age is %d", obs.Age)
	}
	if c.State() != StateProbed {
		t.Fatalf("state is %s", c.State())
	}
	// first observation filled the edge, second already hit cache
	if edge.generated != 1 {
		t.Fatalf("origin executed %d times", edge.generated)
	}
}

func TestVerifySucceedsAfterRevalidation(t *testing.T) {
	edge := &fakeEdge{}
	server := httptest.NewServer(edge.handler())
	defer server.Close()
	c := newTestClient(server.URL)

	baseline, err := c.Probe(context.Background())
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := c.Revalidate(context.Background()); err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	result, err := c.Verify(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Verified {
		t.Fatalf("not verified: %s", result.Message)
	}
	if !result.Observation.GeneratedAt.After(baseline.GeneratedAt) {
		t.Fatal("generation timestamp did not advance")
	}
	if result.Observation.Nonce == baseline.Nonce {
		t.Fatal("nonce unchanged after purge")
	}
	if c.State() != StateVerified {
		t.Fatalf("state is %s", c.State())
	}
}

func TestVerifyExhaustionIsSoftOutcome(t *testing.T) {
	edge := &fakeEdge{}
	server := httptest.NewServer(edge.handler())
	defer server.Close()
	c := newTestClient(server.URL)

	if _, err := c.Probe(context.Background()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	// no revalidation: the cached record never changes
	result, err := c.Verify(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Verified {
		t.Fatal("verified without a purge")
	}
	if result.Message == "" {
		t.Fatal("no soft outcome message")
	}
	if c.State() != StateProbed {
		t.Fatalf("state is %s", c.State())
	}
}

func TestProbeCancellable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Age", "0")
		w.Write([]byte(`{"generated_at":"2026-01-01T00:00:00Z","nonce":"n"}`))
	}))
	defer server.Close()
	c := newTestClient(server.URL)
	c.Delay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if _, err := c.Probe(ctx); err == nil {
		t.Fatal("no error on cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("probe did not stop on cancellation")
	}
}
