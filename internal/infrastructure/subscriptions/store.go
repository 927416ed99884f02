// Package subscriptions persists feed subscriptions partitioned by scope.
package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tesso57/feedwatch/internal/domain/subscription"
	"github.com/tesso57/feedwatch/internal/infrastructure/kv"
	"github.com/tesso57/feedwatch/internal/logger"
)

// Persistence keys of the two partitions.
const (
	UserKey  = "user_subscriptions"
	GroupKey = "group_subscriptions"
)

type record struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Owner    string    `json:"owner,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func toRecord(s subscription.Subscription) record {
	return record{Name: s.Name, URL: s.URL, Owner: s.Scope.User(), LastSeen: s.LastSeen.UTC()}
}

func (r record) subscription(scope subscription.Scope) subscription.Subscription {
	return subscription.Subscription{Name: r.Name, URL: r.URL, Scope: scope, LastSeen: r.LastSeen}
}

type (
	userPartition  map[string]map[string]record
	groupPartition map[string]record
)

// Store reads subscriptions from kv on every call and applies each mutation
// as one atomic read-modify-write of the affected partition, so processes
// sharing the backend never overwrite each other's changes.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// Open checks that both partitions decode. Missing keys are empty.
func Open(ctx context.Context, backend kv.Store, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	s := &Store{kv: backend, now: now}
	if _, err := s.users(ctx); err != nil {
		return nil, err
	}
	if _, err := s.group(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func decode(key string, data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string, dst any) error {
	data, _, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	return decode(key, data, dst)
}

func (s *Store) users(ctx context.Context) (userPartition, error) {
	users := make(userPartition)
	if err := s.load(ctx, UserKey, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) group(ctx context.Context) (groupPartition, error) {
	group := make(groupPartition)
	if err := s.load(ctx, GroupKey, &group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *Store) partition(ctx context.Context, scope subscription.Scope) (map[string]record, error) {
	if scope.IsGroup() {
		return s.group(ctx)
	}
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	return users[scope.User()], nil
}

// mutate runs fn on the freshly read partition of scope and writes it back
// in the same kv transaction. fn returns kv.ErrUnchanged to skip the write.
func (s *Store) mutate(ctx context.Context, scope subscription.Scope, fn func(part map[string]record) error) error {
	if scope.IsGroup() {
		return s.kv.Mutate(ctx, GroupKey, func(current []byte, _ bool) ([]byte, error) {
			group := make(groupPartition)
			if err := decode(GroupKey, current, &group); err != nil {
				return nil, err
			}
			if err := fn(group); err != nil {
				return nil, err
			}
			return json.Marshal(group)
		})
	}
	return s.kv.Mutate(ctx, UserKey, func(current []byte, _ bool) ([]byte, error) {
		users := make(userPartition)
		if err := decode(UserKey, current, &users); err != nil {
			return nil, err
		}
		part := users[scope.User()]
		if part == nil {
			part = make(map[string]record)
		}
		if err := fn(part); err != nil {
			return nil, err
		}
		if len(part) == 0 {
			delete(users, scope.User())
		} else {
			users[scope.User()] = part
		}
		return json.Marshal(users)
	})
}

// List returns the subscriptions of one scope, sorted by name.
func (s *Store) List(ctx context.Context, scope subscription.Scope) ([]subscription.Subscription, error) {
	part, err := s.partition(ctx, scope)
	if err != nil {
		return nil, err
	}
	return collect(part, scope), nil
}

// ListAll returns every user subscription (users in id order) followed by
// the group subscriptions.
func (s *Store) ListAll(ctx context.Context) ([]subscription.Subscription, error) {
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	group, err := s.group(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []subscription.Subscription
	for _, id := range ids {
		out = append(out, collect(users[id], subscription.UserScope(id))...)
	}
	return append(out, collect(group, subscription.GroupScope())...), nil
}

func collect(part map[string]record, scope subscription.Scope) []subscription.Subscription {
	names := make([]string, 0, len(part))
	for name := range part {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]subscription.Subscription, 0, len(names))
	for _, name := range names {
		out = append(out, part[name].subscription(scope))
	}
	return out
}

// Get looks up one subscription by name within scope.
func (s *Store) Get(ctx context.Context, name string, scope subscription.Scope) (subscription.Subscription, bool, error) {
	part, err := s.partition(ctx, scope)
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	r, ok := part[name]
	if !ok {
		return subscription.Subscription{}, false, nil
	}
	return r.subscription(scope), true, nil
}

// Add creates a subscription with its watermark at the current time.
// Names are unique per scope.
func (s *Store) Add(ctx context.Context, url, name string, scope subscription.Scope) (subscription.Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return subscription.Subscription{}, subscription.ErrEmptyName
	}

	sub := subscription.New(url, name, scope, s.now())
	err := s.mutate(ctx, scope, func(part map[string]record) error {
		if _, exists := part[name]; exists {
			return fmt.Errorf("%w: %s", subscription.ErrDuplicateName, name)
		}
		part[name] = toRecord(sub)
		return nil
	})
	if err != nil {
		return subscription.Subscription{}, err
	}
	logger.Infof("[store] added %q (%s) for %s", name, url, scope)
	return sub, nil
}

// Remove deletes and returns the named subscription. ok is false when the
// scope has no such name.
func (s *Store) Remove(ctx context.Context, name string, scope subscription.Scope) (subscription.Subscription, bool, error) {
	name = strings.TrimSpace(name)

	var removed record
	var found bool
	err := s.mutate(ctx, scope, func(part map[string]record) error {
		removed, found = part[name]
		if !found {
			return kv.ErrUnchanged
		}
		delete(part, name)
		return nil
	})
	if err != nil {
		return subscription.Subscription{}, false, err
	}
	if !found {
		return subscription.Subscription{}, false, nil
	}
	logger.Infof("[store] removed %q for %s", name, scope)
	return removed.subscription(scope), true, nil
}

// Update advances the stored watermark of sub to sub.LastSeen. Only the
// watermark of the freshly read record changes; subscriptions removed in the
// meantime are not recreated. It reports whether the watermark moved, which
// makes the caller the single owner of the items between the old and new
// watermark.
func (s *Store) Update(ctx context.Context, sub subscription.Subscription) (bool, error) {
	var advanced bool
	err := s.mutate(ctx, sub.Scope, func(part map[string]record) error {
		advanced = false
		current, ok := part[sub.Name]
		if !ok {
			logger.Warnf("[store] update skipped, %q no longer exists for %s", sub.Name, sub.Scope)
			return kv.ErrUnchanged
		}
		if !sub.LastSeen.After(current.LastSeen) {
			return kv.ErrUnchanged
		}
		current.LastSeen = sub.LastSeen.UTC()
		part[sub.Name] = current
		advanced = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return advanced, nil
}

// ClearAll drops every subscription in both partitions.
func (s *Store) ClearAll(ctx context.Context) error {
	empty := func([]byte, bool) ([]byte, error) { return []byte("{}"), nil }
	if err := s.kv.Mutate(ctx, UserKey, empty); err != nil {
		return fmt.Errorf("clear %s: %w", UserKey, err)
	}
	if err := s.kv.Mutate(ctx, GroupKey, empty); err != nil {
		return fmt.Errorf("clear %s: %w", GroupKey, err)
	}
	logger.Infof("[store] all subscriptions cleared")
	return nil
}
