// Package reading defines core reading models.
package reading

import (
	"fmt"
	"time"
)

// Item represents a single feed entry as seen by one fetch.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Summary     string
	PublishedAt time.Time
}

// Feed represents a parsed feed, items newest first.
type Feed struct {
	Title string
	URL   string
	Items []Item
}

// Newest returns the first item of the feed, if any.
func (f *Feed) Newest() (Item, bool) {
	if f == nil || len(f.Items) == 0 {
		return Item{}, false
	}
	return f.Items[0], true
}

// FetchError reports a network or parse failure for one feed URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
