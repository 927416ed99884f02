// Package kv provides the namespaced key-value persistence behind the
// subscription store.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnchanged is returned by a MutateFunc to leave the stored value as is.
var ErrUnchanged = errors.New("kv: value unchanged")

// MutateFunc computes the next value of a key from its current one. ok is
// false when the key does not exist yet.
type MutateFunc func(current []byte, ok bool) ([]byte, error)

// Store is a namespaced byte-value store. Mutate is an atomic
// read-modify-write of one key, also across processes sharing the backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Mutate returns fn's error, except ErrUnchanged which yields nil.
	Mutate(ctx context.Context, key string, fn MutateFunc) error
}

// apply runs fn and reports whether its result must be written.
func apply(fn MutateFunc, current []byte, ok bool) ([]byte, bool, error) {
	next, err := fn(current, ok)
	if errors.Is(err, ErrUnchanged) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		next = []byte{}
	}
	return next, true, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return new(Memory{values: make(map[string][]byte)})
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Mutate applies fn under the store lock.
func (m *Memory) Mutate(_ context.Context, key string, fn MutateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.values[key]
	next, write, err := apply(fn, append([]byte(nil), current...), ok)
	if err != nil || !write {
		return err
	}
	m.values[key] = append([]byte(nil), next...)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Backend is a Store owning resources that must be released.
type Backend interface {
	Store
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver    string
	Path      string
	DSN       string
	Namespace string
}

// Open opens the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.Path, opts.Namespace)
	case DriverPebble:
		return OpenPebble(opts.Path, opts.Namespace)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN, opts.Namespace)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown kv driver %q", opts.Driver)
	}
}
