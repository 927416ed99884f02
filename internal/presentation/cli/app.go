package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tesso57/feedwatch/internal/application/settings"
	"github.com/tesso57/feedwatch/internal/application/usecase"
	"github.com/tesso57/feedwatch/internal/infrastructure/config"
	"github.com/tesso57/feedwatch/internal/infrastructure/feed"
	"github.com/tesso57/feedwatch/internal/infrastructure/history"
	"github.com/tesso57/feedwatch/internal/infrastructure/kv"
	"github.com/tesso57/feedwatch/internal/infrastructure/notify"
	"github.com/tesso57/feedwatch/internal/infrastructure/subscriptions"
	"github.com/tesso57/feedwatch/internal/logger"
	"github.com/tesso57/feedwatch/internal/presentation/command"
)

// app holds the services wired from one configuration.
type app struct {
	settings   settings.Settings
	configPath string
	poll       *usecase.PollService
	handler    command.Handler
	history    *history.Manager
	backend    kv.Backend
}

func openApp(ctx context.Context, g *Globals, out io.Writer) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	s := cfg.Settings

	if err := logger.Init(logger.Config{
		Level:      s.Log.Level,
		File:       s.Log.File,
		MaxSize:    s.Log.MaxSize,
		MaxBackups: s.Log.MaxBackups,
		MaxAge:     s.Log.MaxAge,
	}); err != nil {
		return nil, &settings.ConfigurationError{Field: "log.level", Err: err}
	}

	opts := kv.Options{
		Driver:    s.Store.Driver,
		Path:      s.Store.Path,
		DSN:       s.Store.DSN,
		Namespace: s.Store.Namespace,
	}
	if g.Ephemeral {
		opts.Driver = kv.DriverMemory
	}
	backend, err := kv.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	store, err := subscriptions.Open(ctx, backend, nil)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	poll := usecase.NewPollService(store, feed.NewFetcher(s.Poll.Timeout()), notify.NewConsole(out, 0), s.Notify.GroupRecipient)
	poll.FetchTimeout = s.Poll.Timeout()
	poll.PlainText = notify.PlainText

	journal := history.NewManager(s.Store.HistoryPath)
	if !g.Ephemeral {
		poll.History = journal
	}

	return &app{
		settings:   s,
		configPath: cfg.Path(),
		poll:       poll,
		history:    journal,
		handler: command.Handler{
			Subs:           usecase.NewSubscriptionService(store),
			Poll:           poll,
			GroupRecipient: s.Notify.GroupRecipient,
			IsAdmin:        s.IsAdmin,
		},
		backend: backend,
	}, nil
}

func (a *app) Close() error {
	logger.Sync()
	return a.backend.Close()
}

// isConfigError reports whether err should abort activation.
func isConfigError(err error) bool {
	var cfgErr *settings.ConfigurationError
	return errors.As(err, &cfgErr)
}
