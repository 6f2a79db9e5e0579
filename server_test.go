package cachedemo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DuncanSchouten/cdn-cache-demo/cache"
	"github.com/DuncanSchouten/cdn-cache-demo/content"
)

// countingSource wraps a Source and counts how many times the post list
// is actually produced, so tests can tell cache hits from misses.
type countingSource struct {
	content.Source
	mu    sync.Mutex
	lists int
}

func (c *countingSource) List(ctx context.Context) ([]content.Item, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.Source.List(ctx)
}

func (c *countingSource) listCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

func newTestServer(t *testing.T) (*httptest.Server, *countingSource) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Provider = "memory"
	cfg.RevalidateTTL = 50 * time.Millisecond
	cfg.SweepInterval = 0
	source := &countingSource{Source: content.NewMockSource()}
	server := NewServer(cfg, source, cache.NewMemCache(), nil, zerolog.Nop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, source
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, body
}

func TestNoCacheAlwaysHitsSource(t *testing.T) {
	ts, source := newTestServer(t)
	get(t, ts.URL+"/posts/no-cache")
	get(t, ts.URL+"/posts/no-cache")
	if source.listCount() != 2 {
		t.Errorf("expected 2 source executions, got %d", source.listCount())
	}
}

func TestForceCacheHitsSourceOnce(t *testing.T) {
	ts, source := newTestServer(t)
	_, first := get(t, ts.URL+"/posts/force-cache")
	_, second := get(t, ts.URL+"/posts/force-cache")
	if source.listCount() != 1 {
		t.Errorf("expected 1 source execution, got %d", source.listCount())
	}
	var a, b postsPayload
	if err := json.Unmarshal(first, &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second, &b); err != nil {
		t.Fatal(err)
	}
	if string(a.Data) != string(b.Data) {
		t.Error("cached payload should be byte-identical across hits")
	}
}

func TestRevalidateRefetchesAfterTTL(t *testing.T) {
	ts, source := newTestServer(t)
	get(t, ts.URL+"/posts/revalidate")
	get(t, ts.URL+"/posts/revalidate")
	if source.listCount() != 1 {
		t.Fatalf("expected 1 source execution before TTL, got %d", source.listCount())
	}
	time.Sleep(80 * time.Millisecond)
	get(t, ts.URL+"/posts/revalidate")
	if source.listCount() != 2 {
		t.Errorf("expected 2 source executions after TTL, got %d", source.listCount())
	}
}

func TestPostsResponseIsNoStore(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, path := range []string{"/posts/no-cache", "/posts/force-cache", "/posts/revalidate", "/posts/tagged"} {
		res, _ := get(t, ts.URL+path)
		if cc := res.Header.Get("Cache-Control"); !strings.Contains(cc, "no-store") {
			t.Errorf("%s: expected no-store Cache-Control, got %q", path, cc)
		}
	}
}

func TestPostLimitTruncatesList(t *testing.T) {
	ts, _ := newTestServer(t)
	_, body := get(t, ts.URL+"/posts/no-cache")
	var payload postsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	var posts []content.DisplayItem
	if err := json.Unmarshal(payload.Data, &posts); err != nil {
		t.Fatal(err)
	}
	if len(posts) != DefaultConfig().PostLimit {
		t.Errorf("expected %d posts, got %d", DefaultConfig().PostLimit, len(posts))
	}
}

func TestTaggedEndpointEmitsSurrogateKeyOnHit(t *testing.T) {
	ts, _ := newTestServer(t)
	get(t, ts.URL+"/posts/tagged")
	res, _ := get(t, ts.URL+"/posts/tagged")
	if key := res.Header.Get("Surrogate-Key"); !strings.Contains(key, "posts") {
		t.Errorf("expected Surrogate-Key with posts tag, got %q", key)
	}
}

func TestRevalidateWithoutParamsIsBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)
	res, body := get(t, ts.URL+"/revalidate")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Error == "" {
		t.Error("expected an error message")
	}
}

func TestRevalidateByTagEchoesTag(t *testing.T) {
	ts, _ := newTestServer(t)
	res, body := get(t, ts.URL+"/revalidate?tag=posts")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var payload revalidatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Revalidated || payload.Tag != "posts" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Now.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestRevalidateByPathEchoesPath(t *testing.T) {
	ts, _ := newTestServer(t)
	_, body := get(t, ts.URL+"/revalidate?path="+url.QueryEscape("/posts/force-cache"))
	var payload revalidatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Revalidated || payload.Path != "/posts/force-cache" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestRevalidatePathWinsOverTag(t *testing.T) {
	ts, _ := newTestServer(t)
	_, body := get(t, ts.URL+"/revalidate?tag=posts&path="+url.QueryEscape("/posts/force-cache"))
	var payload revalidatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Path != "/posts/force-cache" || payload.Tag != "" {
		t.Errorf("path should take precedence, got %+v", payload)
	}
}

func TestRevalidateByTagRefetchesTaggedPosts(t *testing.T) {
	ts, source := newTestServer(t)
	get(t, ts.URL+"/posts/tagged")
	get(t, ts.URL+"/posts/tagged")
	if source.listCount() != 1 {
		t.Fatalf("expected 1 source execution, got %d", source.listCount())
	}
	get(t, ts.URL+"/revalidate?tag=posts")
	get(t, ts.URL+"/posts/tagged")
	if source.listCount() != 2 {
		t.Errorf("expected a fresh source execution after tag purge, got %d", source.listCount())
	}
}

func TestRevalidateAcceptsPostBody(t *testing.T) {
	ts, source := newTestServer(t)
	get(t, ts.URL+"/posts/tagged")
	res, err := http.Post(ts.URL+"/revalidate", "application/json", strings.NewReader(`{"tag":"posts"}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	var payload revalidatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Tag != "posts" {
		t.Errorf("expected tag from body, got %+v", payload)
	}
	get(t, ts.URL+"/posts/tagged")
	if source.listCount() != 2 {
		t.Errorf("expected a fresh source execution, got %d", source.listCount())
	}
}

func TestProbeRecordStableUntilRevalidated(t *testing.T) {
	ts, _ := newTestServer(t)
	_, first := get(t, ts.URL+"/cdnprobe")
	_, second := get(t, ts.URL+"/cdnprobe")
	if string(first) != string(second) {
		t.Fatal("probe record should be byte-identical while cached")
	}

	get(t, ts.URL+"/revalidate?tag=cdnprobe")

	_, third := get(t, ts.URL+"/cdnprobe")
	var before, after ProbeRecord
	if err := json.Unmarshal(first, &before); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(third, &after); err != nil {
		t.Fatal(err)
	}
	if after.Nonce == before.Nonce {
		t.Error("expected a new nonce after revalidation")
	}
	if !after.GeneratedAt.After(before.GeneratedAt) {
		t.Errorf("expected generated_at to advance: before=%s after=%s",
			before.GeneratedAt, after.GeneratedAt)
	}
}

func TestProbeEndpointHeaders(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := get(t, ts.URL+"/cdnprobe")
	if key := res.Header.Get("Surrogate-Key"); !strings.Contains(key, "cdnprobe") {
		t.Errorf("expected Surrogate-Key with cdnprobe tag, got %q", key)
	}
	if cc := res.Header.Get("Cache-Control"); !strings.Contains(cc, "s-maxage=") {
		t.Errorf("expected s-maxage Cache-Control, got %q", cc)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	res, body := get(t, ts.URL+"/health")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "ok" {
		t.Errorf("unexpected payload: %v", payload)
	}
}
