package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/tesso57/feedwatch/internal/logger"
)

// Pebble is a Store backed by an embedded Pebble database. Keys are stored
// as "<namespace>/<key>". Pebble locks its directory, so only one process can
// open it at a time.
type Pebble struct {
	mu        sync.Mutex
	inner     *pebble.DB
	dir       string
	namespace string
}

// OpenPebble opens or creates the database directory at dir.
func OpenPebble(dir, namespace string) (*Pebble, error) {
	if dir == "" {
		return nil, errors.New("pebble directory is empty")
	}
	if namespace == "" {
		return nil, errors.New("kv namespace is empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	inner, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s (is another feedwatch process using it?): %w", dir, err)
	}
	logger.Infof("[kv] pebble opened: %s (namespace %s)", dir, namespace)
	return &Pebble{inner: inner, dir: dir, namespace: namespace}, nil
}

func (p *Pebble) key(key string) []byte {
	return []byte(p.namespace + "/" + key)
}

// Path returns the database directory.
func (p *Pebble) Path() string { return p.dir }

// Get returns a copy of the value stored under key.
func (p *Pebble) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return p.get(key)
}

func (p *Pebble) get(key string) ([]byte, bool, error) {
	value, closer, err := p.inner.Get(p.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), value...), true, nil
}

// Set writes value under key and syncs the WAL.
func (p *Pebble) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value)
}

// Mutate applies fn while holding the write lock of this handle.
func (p *Pebble) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok, err := p.get(key)
	if err != nil {
		return err
	}
	next, write, err := apply(fn, current, ok)
	if err != nil || !write {
		return err
	}
	return p.set(key, next)
}

func (p *Pebble) set(key string, value []byte) error {
	if err := p.inner.Set(p.key(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (p *Pebble) Close() error {
	if p == nil || p.inner == nil {
		return nil
	}
	return p.inner.Close()
}
