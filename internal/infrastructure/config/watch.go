package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/tesso57/feedwatch/internal/application/settings"
	"github.com/tesso57/feedwatch/internal/logger"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path  string
	inner *fsnotify.Watcher
}

// NewWatcher starts watching the directory holding path. Watching the
// directory keeps working when editors replace the file by rename.
func NewWatcher(path string) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	path = filepath.Clean(path)
	if err := inner.Add(filepath.Dir(path)); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: path, inner: inner}, nil
}

// Run calls onChange with the reloaded settings after every write until ctx
// is done. Files that fail to load are logged and ignored.
func (w *Watcher) Run(ctx context.Context, onChange func(settings.Settings)) {
	defer func() { _ = w.inner.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			store, err := Load(w.path)
			if err != nil {
				logger.Warnf("[config] ignoring change to %s: %v", w.path, err)
				continue
			}
			logger.Infof("[config] reloaded %s", w.path)
			onChange(store.Settings)
		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}
			logger.Warnf("[config] watch error: %v", err)
		}
	}
}
