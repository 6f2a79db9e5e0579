package content

import (
	"regexp"
	"strings"
	"testing"
)

var slugShape = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func TestSlugifyShape(t *testing.T) {
	titles := []string{
		"Getting started with edge caching",
		"  Leading and trailing   spaces  ",
		"Punctuation, everywhere! (really?)",
		"MiXeD CaSe & Ampersands",
		"dashes - already -- present",
		"unicode snowman ☃ in title",
		"123 numbers first",
	}
	for _, title := range titles {
		slug := Slugify(title)
		if slug == "" {
			t.Fatalf("empty slug for %q", title)
		}
		if !slugShape.MatchString(slug) {
			t.Fatalf("slug %q for title %q has bad shape", slug, title)
		}
	}
}

func TestSlugifyKnownValues(t *testing.T) {
	cases := map[string]string{
		"Surrogate keys explained": "surrogate-keys-explained",
		"Why? Because!":            "why-because",
		"  spaced   out  ":         "spaced-out",
		"CDN & Edge: a love story": "cdn-edge-a-love-story",
	}
	for title, want := range cases {
		if got := Slugify(title); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestExcerptShortBodyUnchanged(t *testing.T) {
	body := "short body"
	if got := Excerpt(body); got != body {
		t.Fatalf("short body changed: %q", got)
	}
}

func TestExcerptNeverExceedsLimit(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := Excerpt(long)
	if n := len([]rune(got)); n > ExcerptLength+len([]rune(Ellipsis)) {
		t.Fatalf("excerpt is %d runes", n)
	}
	if !strings.HasSuffix(got, Ellipsis) {
		t.Fatal("truncated excerpt has no ellipsis")
	}
}

func TestReadingTimePositiveAndMonotonic(t *testing.T) {
	previous := 0
	for _, words := range []int{0, 1, 50, 199, 200, 201, 1000, 5000} {
		body := strings.TrimSpace(strings.Repeat("word ", words))
		got := ReadingTime(body)
		if got < 1 {
			t.Fatalf("reading time for %d words is %d", words, got)
		}
		if got < previous {
			t.Fatalf("reading time decreased: %d words -> %d", words, got)
		}
		previous = got
	}
	if got := ReadingTime(strings.TrimSpace(strings.Repeat("w ", 201))); got != 2 {
		t.Fatalf("201 words should read in 2 minutes, got %d", got)
	}
}

func TestDisplayDefaultsMissingAuthor(t *testing.T) {
	items := []Item{
		{ID: 1, UserID: 1, Title: "Has author", Body: "body"},
		{ID: 2, UserID: 99, Title: "No author", Body: "body"},
	}
	authors := []Author{{ID: 1, Name: "Ada Lindgren", Username: "ada"}}

	display := Display(items, authors)

	if display[0].Author != "Ada Lindgren" || display[0].AuthorHandle != "ada" {
		t.Fatalf("author fields are %q/%q", display[0].Author, display[0].AuthorHandle)
	}
	if display[1].Author != "Unknown author" || display[1].AuthorHandle != "unknown" {
		t.Fatalf("placeholder fields are %q/%q", display[1].Author, display[1].AuthorHandle)
	}
	if display[0].Slug != "has-author" {
		t.Fatalf("slug is %q", display[0].Slug)
	}
	if len(display[1].Tags) != 2 || display[1].Tags[1] != "post-2" {
		t.Fatalf("tags are %v", display[1].Tags)
	}
}
