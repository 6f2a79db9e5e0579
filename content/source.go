// Package content provides the demo data source and the transforms
// that turn raw records into a display-ready shape.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("content: item not found")

// Item is a raw content record as delivered by the backing store.
type Item struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Author is a raw author record.
type Author struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Source provides the demo content records.
// The mock implementation never fails; the remote implementation
// propagates fetch errors to the caller.
type Source interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id int) (Item, error)
	Authors(ctx context.Context) ([]Author, error)
}

// MockSource serves a fixed set of records from memory.
type MockSource struct{}

func NewMockSource() MockSource {
	return MockSource{}
}

func (MockSource) List(ctx context.Context) ([]Item, error) {
	items := make([]Item, len(mockItems))
	copy(items, mockItems)
	return items, nil
}

func (MockSource) Get(ctx context.Context, id int) (Item, error) {
	for _, item := range mockItems {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (MockSource) Authors(ctx context.Context) ([]Author, error) {
	authors := make([]Author, len(mockAuthors))
	copy(authors, mockAuthors)
	return authors, nil
}

// RemoteSource fetches records over HTTP from a JSON API.
type RemoteSource struct {
	baseURL string
	client  *http.Client
}

// RemoteConfig configures a RemoteSource.
// When ClientID is set, requests authenticate with OAuth2 client
// credentials against TokenURL.
type RemoteConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

func NewRemoteSource(cfg RemoteConfig) RemoteSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if cfg.ClientID != "" {
		oauth := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = oauth.Client(context.Background())
		client.Timeout = timeout
	}
	return RemoteSource{
		baseURL: cfg.BaseURL,
		client:  client,
	}
}

func (s RemoteSource) List(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := s.getJSON(ctx, "/posts", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s RemoteSource) Get(ctx context.Context, id int) (Item, error) {
	var item Item
	err := s.getJSON(ctx, fmt.Sprintf("/posts/%d", id), &item)
	return item, err
}

func (s RemoteSource) Authors(ctx context.Context) ([]Author, error) {
	var authors []Author
	if err := s.getJSON(ctx, "/users", &authors); err != nil {
		return nil, err
	}
	return authors, nil
}

func (s RemoteSource) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("content: fetch %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("content: fetch %s: unexpected status %d: %s", path, res.StatusCode, body)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

var mockAuthors = []Author{
	{ID: 1, Name: "Ada Lindgren", Username: "ada"},
	{ID: 2, Name: "Bram Okafor", Username: "bram"},
}

var mockItems = []Item{
	{
		ID:     1,
		UserID: 1,
		Title:  "Getting started with edge caching",
		Body: "Edge caches sit between your origin and your readers. " +
			"A response served from the edge never touches the origin at all, " +
			"which is both the whole point and the whole problem: once a copy " +
			"is out there, you need a way to call it back. Purging by URL " +
			"works until your content shows up on more than one page.",
	},
	{
		ID:     2,
		UserID: 2,
		Title:  "Surrogate keys explained",
		Body: "A surrogate key is a label attached to a cached response. " +
			"Instead of purging URLs one by one, you purge the label and every " +
			"response carrying it disappears from the cache in one sweep.",
	},
	{
		ID:     3,
		UserID: 1,
		Title:  "Timed revalidation vs tag invalidation",
		Body: "Timed revalidation trades freshness for simplicity: content is " +
			"at most N seconds old and nobody has to remember to purge. Tags " +
			"invert the trade, content is always fresh but every write path " +
			"must know which labels it dirties.",
	},
	{
		ID:     4,
		UserID: 2,
		Title:  "Why the probe endpoint rolls a nonce",
		Body: "Two responses with identical bodies are indistinguishable to a " +
			"client, so the probe regenerates a random nonce and a timestamp " +
			"on every origin execution. If the nonce you see changes, the " +
			"origin ran; if it does not, a cache answered.",
	},
	{
		ID:     5,
		UserID: 7,
		Title:  "Headers a CDN actually reads",
		Body: "Cache-Control s-maxage wins over max-age for shared caches. " +
			"Surrogate-Key names the purge handles. Age tells you how long a " +
			"copy has been sitting at the edge.",
	},
}
