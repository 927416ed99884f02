// Package history keeps a JSON Lines journal of delivered feed items.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tesso57/feedwatch/internal/application/usecase"
)

// Entry is one journal line.
type Entry struct {
	TickID      string    `json:"tick_id"`
	Feed        string    `json:"feed"`
	Scope       string    `json:"scope"`
	Recipient   string    `json:"recipient"`
	Kind        string    `json:"kind"`
	GUID        string    `json:"guid,omitempty"`
	Title       string    `json:"title,omitempty"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Manager appends to and reads the journal file.
type Manager struct {
	mu   sync.RWMutex
	path string
}

// NewManager creates a new journal manager.
func NewManager(path string) *Manager {
	return new(Manager{
		path: path,
	})
}

// Path returns the journal location.
func (m *Manager) Path() string { return m.path }

// Record appends d to the journal.
func (m *Manager) Record(ctx context.Context, d usecase.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Append(Entry{
		TickID:      d.TickID,
		Feed:        d.Feed,
		Scope:       d.Scope,
		Recipient:   d.Recipient,
		Kind:        d.Kind.String(),
		GUID:        d.Item.GUID,
		Title:       d.Item.Title,
		Link:        d.Item.Link,
		PublishedAt: d.Item.PublishedAt,
		DeliveredAt: d.At,
	})
}

// Append writes one entry at the end of the file.
func (m *Manager) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0750); err != nil {
		return err
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(e); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads every entry in file order.
func (m *Manager) Load() ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Recent returns at most n entries, newest delivery first.
func (m *Manager) Recent(n int) ([]Entry, error) {
	entries, err := m.Load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}
