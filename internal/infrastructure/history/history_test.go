package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tesso57/feedwatch/internal/application/usecase"
	"github.com/tesso57/feedwatch/internal/domain/reading"
)

func TestManager_RecordAndLoad(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nested", "history.jsonl"))

	published := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	delivered := published.Add(time.Minute)
	d := usecase.Delivery{
		TickID:    "tick-1",
		Feed:      "tech",
		Scope:     "alice",
		Recipient: "alice",
		Kind:      usecase.Direct,
		Item:      reading.Item{GUID: "id1", Title: "Title 1", Link: "http://a/1", PublishedAt: published},
		At:        delivered,
	}

	if err := m.Record(context.Background(), d); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	d.Kind = usecase.Broadcast
	d.Item.Link = "http://a/2"
	if err := m.Record(context.Background(), d); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Load len = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.TickID != "tick-1" || first.Feed != "tech" || first.Kind != "direct" || first.Link != "http://a/1" {
		t.Fatalf("unexpected first entry: %#v", first)
	}
	if !first.PublishedAt.Equal(published) || !first.DeliveredAt.Equal(delivered) {
		t.Fatalf("timestamps not round-tripped: %#v", first)
	}
	if entries[1].Kind != "broadcast" {
		t.Fatalf("second kind = %q, want broadcast", entries[1].Kind)
	}
}

func TestManager_LoadMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.jsonl"))
	entries, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestManager_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := "{\"feed\":\"a\",\"link\":\"http://a\"}\nnot json\n{\"feed\":\"b\",\"link\":\"http://b\"}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	entries, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Feed != "a" || entries[1].Feed != "b" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestManager_Recent(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "history.jsonl"))
	for _, feed := range []string{"a", "b", "c"} {
		if err := m.Append(Entry{Feed: feed}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	recent, err := m.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Feed != "c" || recent[1].Feed != "b" {
		t.Fatalf("unexpected recent entries: %#v", recent)
	}

	all, err := m.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(all) != 3 || all[2].Feed != "a" {
		t.Fatalf("unexpected entries: %#v", all)
	}
}

func TestManager_RecordCanceled(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "history.jsonl"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Record(ctx, usecase.Delivery{Feed: "a"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, err := os.Stat(m.Path()); !os.IsNotExist(err) {
		t.Fatalf("journal should not be created, stat err = %v", err)
	}
}
