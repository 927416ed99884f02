// Package config handles configuration loading and saving.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/tesso57/feedwatch/internal/application/settings"
	"gopkg.in/yaml.v3"
)

// Store manages persisted application settings.
type Store struct {
	Settings   settings.Settings
	configPath string
}

// Load loads the configuration from the specified path or default location.
// Unknown keys, wrong value types and out-of-range values are reported as
// *settings.ConfigurationError.
func Load(customPath ...string) (*Store, error) {
	var configPath string
	if len(customPath) > 0 && customPath[0] != "" {
		configPath = customPath[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(home, ".config", "feedwatch", "config.yaml")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := settings.Settings{}
	store := &Store{Settings: cfg, configPath: configPath}

	var options []kong.Option

	// Only add configuration loader if file exists
	_, statErr := os.Stat(configPath)
	exists := statErr == nil
	if exists {
		if err := checkSchema(configPath); err != nil {
			return nil, err
		}
		options = append(options, kong.Configuration(yamlKongLoader, configPath))
	}

	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return nil, err
	}

	if _, err := parser.Parse([]string{}); err != nil {
		return nil, &settings.ConfigurationError{Err: err}
	}

	store.Settings = cfg
	store.Settings.Store.Path = strings.TrimSpace(store.Settings.Store.Path)
	if store.Settings.Store.Path == "" {
		name := "feedwatch.db"
		if store.Settings.Store.Driver == "pebble" {
			name = "pebble"
		}
		store.Settings.Store.Path = filepath.Join(defaultDataHome(), "feedwatch", name)
	}
	store.Settings.Store.HistoryPath = strings.TrimSpace(store.Settings.Store.HistoryPath)
	if store.Settings.Store.HistoryPath == "" {
		store.Settings.Store.HistoryPath = filepath.Join(filepath.Dir(store.Settings.Store.Path), "history.jsonl")
	}

	if err := store.Settings.Validate(); err != nil {
		return nil, err
	}

	// Save defaults if new file
	if !exists {
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	return store, nil
}

// checkSchema decodes the file strictly so unknown keys and mistyped values
// fail before kong fills in defaults.
func checkSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var strict settings.Settings
	if err := dec.Decode(&strict); err != nil && !errors.Is(err, io.EOF) {
		return &settings.ConfigurationError{Err: err}
	}
	return nil
}

// Path returns the config file location.
func (s *Store) Path() string { return s.configPath }

func defaultDataHome() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome != "" {
		return dataHome
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

func yamlKongLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil {
		if err == io.EOF {
			return nil, nil // Return nil resolver (no op)
		}
		return nil, err
	}

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		// Try various naming conventions
		names := []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")}
		for _, name := range names {
			// Check direct match
			if v, ok := values[name]; ok {
				return v, nil
			}

			// Check nested dot-notation
			parts := strings.Split(name, ".")
			if len(parts) > 1 {
				curr := values
				for i, part := range parts {
					if i == len(parts)-1 {
						if v, ok := curr[part]; ok {
							return v, nil
						}
					} else {
						if nextMap, ok := curr[part].(map[string]any); ok {
							curr = nextMap
						} else {
							break
						}
					}
				}
			}
		}
		return nil, nil
	}
	return f, nil
}

// Save writes the current settings to the config file.
func (s *Store) Save() error {
	f, err := os.Create(s.configPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return yaml.NewEncoder(f).Encode(s.Settings)
}
