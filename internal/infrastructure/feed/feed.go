// Package feed provides functionality to fetch and parse RSS/Atom feeds.
package feed

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tesso57/feedwatch/internal/domain/reading"
)

const (
	feedAcceptHeader = "application/atom+xml, application/rss+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	userAgent        = "feedwatch/1.0"

	// DefaultTimeout bounds a single fetch when no timeout is configured.
	DefaultTimeout = 20 * time.Second
)

type acceptTransport struct {
	base http.RoundTripper
}

func (t acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", feedAcceptHeader)
	}
	return base.RoundTrip(clone)
}

// ParserFunc is exposed for testing.
// It allows mocking the feed parsing logic.
var ParserFunc = defaultParser

func defaultParser(ctx context.Context, url string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = &http.Client{Transport: acceptTransport{base: http.DefaultTransport}}
	return fp.ParseURLWithContext(url, ctx)
}

// Fetcher fetches feeds with a per-call timeout.
type Fetcher struct {
	Timeout time.Duration
	Now     func() time.Time
}

// NewFetcher constructs a Fetcher. A non-positive timeout uses DefaultTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return new(Fetcher{Timeout: timeout, Now: time.Now})
}

// Fetch parses the feed at url. Items are returned newest first.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*reading.Feed, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return fetch(ctx, url, now)
}

func fetch(ctx context.Context, url string, now func() time.Time) (*reading.Feed, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &reading.FetchError{URL: url, Err: errors.New("feed url is empty")}
	}
	parsed, err := ParserFunc(ctx, url)
	if err != nil {
		return nil, &reading.FetchError{URL: url, Err: err}
	}
	if parsed == nil {
		return nil, &reading.FetchError{URL: url, Err: errors.New("parser returned no feed")}
	}

	fetchedAt := now()
	f := new(reading.Feed{
		Title: parsed.Title,
		URL:   url,
		Items: make([]reading.Item, 0, len(parsed.Items)),
	})

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		f.Items = append(f.Items, reading.Item{
			GUID:        item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Summary:     summary,
			PublishedAt: itemDate(item, fetchedAt),
		})
	}

	slices.SortStableFunc(f.Items, func(a, b reading.Item) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return f, nil
}

// itemDate prefers the published date, then the updated date, then the
// fetch time for entries that carry neither.
func itemDate(item *gofeed.Item, fallback time.Time) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return fallback
}
