// Package subscription defines feed subscription models.
package subscription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tesso57/feedwatch/internal/domain/reading"
)

var (
	// ErrDuplicateName is returned when a name is already taken within a scope.
	ErrDuplicateName = errors.New("subscription name already exists in scope")
	// ErrEmptyName is returned for blank subscription names.
	ErrEmptyName = errors.New("subscription name is empty")
)

// Scope says who owns a subscription: one user, or the shared group.
// The zero value is the group scope.
type Scope struct {
	user string
}

// UserScope returns the personal scope of the given user.
func UserScope(id string) Scope {
	return Scope{user: strings.TrimSpace(id)}
}

// GroupScope returns the shared group scope.
func GroupScope() Scope {
	return Scope{}
}

// IsGroup reports whether s is the group scope.
func (s Scope) IsGroup() bool { return s.user == "" }

// User returns the owning user id, empty for the group scope.
func (s Scope) User() string { return s.user }

func (s Scope) String() string {
	if s.IsGroup() {
		return "group chat"
	}
	return s.user
}

// Fetcher retrieves the items of a feed, newest first.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*reading.Feed, error)
}

// Subscription represents a single named feed subscription.
type Subscription struct {
	Name     string
	URL      string
	Scope    Scope
	LastSeen time.Time
}

// New creates a subscription whose watermark starts at now.
func New(url, name string, scope Scope, now time.Time) Subscription {
	return Subscription{
		Name:     name,
		URL:      url,
		Scope:    scope,
		LastSeen: now,
	}
}

// HasNewItem reports whether the feed's newest item is past the watermark.
// It never mutates the subscription.
func (s *Subscription) HasNewItem(ctx context.Context, fetcher Fetcher) (bool, error) {
	_, ok, err := s.newest(ctx, fetcher)
	return ok, err
}

// ClaimNewestItem returns the feed's newest item and advances the watermark to
// it when the item is strictly newer than the watermark. Older entries that
// arrived in the same window are never surfaced.
func (s *Subscription) ClaimNewestItem(ctx context.Context, fetcher Fetcher) (reading.Item, bool, error) {
	item, ok, err := s.newest(ctx, fetcher)
	if err != nil || !ok {
		return reading.Item{}, false, err
	}
	s.LastSeen = item.PublishedAt
	return item, true, nil
}

func (s *Subscription) newest(ctx context.Context, fetcher Fetcher) (reading.Item, bool, error) {
	feed, err := fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return reading.Item{}, false, err
	}
	item, ok := feed.Newest()
	if !ok || !item.PublishedAt.After(s.LastSeen) {
		return reading.Item{}, false, nil
	}
	return item, true, nil
}
