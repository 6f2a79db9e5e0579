package content

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// ExcerptLength is the character cutoff for excerpts.
	ExcerptLength = 160
	// Ellipsis marks a truncated excerpt.
	Ellipsis = "…"
	// wordsPerMinute is the assumed reading rate.
	wordsPerMinute = 200
)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// DisplayItem is the display-ready shape of a content record.
type DisplayItem struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	Excerpt      string   `json:"excerpt"`
	ReadingTime  int      `json:"reading_time"`
	Author       string   `json:"author"`
	AuthorHandle string   `json:"author_handle"`
	Tags         []string `json:"tags"`
}

// Slugify derives a URL-safe slug from a title: lowercase, non-word
// characters stripped, whitespace collapsed to single hyphens.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = nonWord.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), "-")
}

// Excerpt returns the body cut off at ExcerptLength characters.
// Bodies short enough are returned unchanged; truncated ones get an
// ellipsis appended.
func Excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= ExcerptLength {
		return body
	}
	return string(runes[:ExcerptLength]) + Ellipsis
}

// ReadingTime estimates reading time in minutes, rounded up.
// It is always at least 1.
func ReadingTime(body string) int {
	words := len(strings.Fields(body))
	if words == 0 {
		return 1
	}
	return (words + wordsPerMinute - 1) / wordsPerMinute
}

// Display maps raw items and authors to their display shape.
// Items whose author is missing get placeholder author fields.
func Display(items []Item, authors []Author) []DisplayItem {
	byID := make(map[int]Author, len(authors))
	for _, a := range authors {
		byID[a.ID] = a
	}
	display := make([]DisplayItem, 0, len(items))
	for _, item := range items {
		d := DisplayItem{
			ID:          item.ID,
			Title:       item.Title,
			Slug:        Slugify(item.Title),
			Excerpt:     Excerpt(item.Body),
			ReadingTime: ReadingTime(item.Body),
			Tags:        []string{"posts", fmt.Sprintf("post-%d", item.ID)},
		}
		if author, ok := byID[item.UserID]; ok {
			d.Author = author.Name
			d.AuthorHandle = author.Username
		} else {
			d.Author = "Unknown author"
			d.AuthorHandle = "unknown"
		}
		display = append(display, d)
	}
	return display
}
