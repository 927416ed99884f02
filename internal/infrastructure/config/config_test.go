package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tesso57/feedwatch/internal/application/settings"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	store, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if store.Settings.Poll.PollInterval != settings.DefaultPollInterval {
		t.Errorf("Expected default poll interval %d, got %d", settings.DefaultPollInterval, store.Settings.Poll.PollInterval)
	}
	if store.Settings.Poll.FetchTimeout != 20 {
		t.Errorf("Expected default fetch timeout 20, got %d", store.Settings.Poll.FetchTimeout)
	}
	if store.Settings.Store.Namespace != "rss_feed" {
		t.Errorf("Expected default namespace, got %q", store.Settings.Store.Namespace)
	}
	if filepath.Base(store.Settings.Store.Path) != "feedwatch.db" {
		t.Errorf("Expected default database path, got %q", store.Settings.Store.Path)
	}
	if store.Settings.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %q", store.Settings.Log.Level)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file not created")
	}

	// Defaults round-trip through the written file.
	again, err := Load(configPath)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Settings.Poll.PollInterval != settings.DefaultPollInterval {
		t.Errorf("reload changed poll interval to %d", again.Settings.Poll.PollInterval)
	}
}

func TestLoad_Values(t *testing.T) {
	configPath := writeConfig(t, `poll:
  poll_interval: 60
notify:
  group_recipient: room@conference.example.org
admins:
  - root@example.org
store:
  path: /tmp/feedwatch-test.db
`)

	store, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Settings.Poll.PollInterval != 60 {
		t.Errorf("Expected poll interval 60, got %d", store.Settings.Poll.PollInterval)
	}
	if store.Settings.Poll.FetchTimeout != 20 {
		t.Errorf("Expected default fetch timeout, got %d", store.Settings.Poll.FetchTimeout)
	}
	if store.Settings.Notify.GroupRecipient != "room@conference.example.org" {
		t.Errorf("unexpected group recipient %q", store.Settings.Notify.GroupRecipient)
	}
	if len(store.Settings.Admins) != 1 || store.Settings.Admins[0] != "root@example.org" {
		t.Errorf("unexpected admins %#v", store.Settings.Admins)
	}
	if store.Settings.Store.Path != "/tmp/feedwatch-test.db" {
		t.Errorf("unexpected store path %q", store.Settings.Store.Path)
	}
	if store.Settings.Store.HistoryPath != "/tmp/history.jsonl" {
		t.Errorf("unexpected history path %q", store.Settings.Store.HistoryPath)
	}
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown top-level key", content: "what_else: 1\n"},
		{name: "unknown poll key", content: "poll:\n  poll_interval: 60\n  jitter: 5\n"},
		{name: "non-integer interval", content: "poll:\n  poll_interval: soon\n"},
		{name: "zero interval", content: "poll:\n  poll_interval: 0\n"},
		{name: "negative interval", content: "poll:\n  poll_interval: -30\n"},
		{name: "wrong shape", content: "poll: 1800\n"},
		{name: "unknown driver", content: "store:\n  driver: redis\n"},
		{name: "postgres without dsn", content: "store:\n  driver: postgres\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			var cfgErr *settings.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	store, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Settings.Poll.PollInterval != settings.DefaultPollInterval {
		t.Errorf("Expected default poll interval, got %d", store.Settings.Poll.PollInterval)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid_yaml: ["))
	if err == nil {
		t.Error("Expected error for corrupt config read, got nil")
	}
}

func TestStore_Save(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	store, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	store.Settings.Poll.PollInterval = 90
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if store.Path() != configPath {
		t.Errorf("Path() = %q, want %q", store.Path(), configPath)
	}

	reloaded, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Settings.Poll.PollInterval != 90 {
		t.Errorf("Persistence failed, expected 90, got %d", reloaded.Settings.Poll.PollInterval)
	}
}

func TestLoad_PebbleDefaultPath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	configPath := writeConfig(t, "store:\n  driver: pebble\n")

	store, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if want := filepath.Join(dataHome, "feedwatch", "pebble"); store.Settings.Store.Path != want {
		t.Errorf("store path = %q, want %q", store.Settings.Store.Path, want)
	}
	if want := filepath.Join(dataHome, "feedwatch", "history.jsonl"); store.Settings.Store.HistoryPath != want {
		t.Errorf("history path = %q, want %q", store.Settings.Store.HistoryPath, want)
	}
}
