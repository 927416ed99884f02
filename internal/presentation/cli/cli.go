// Package cli exposes the feed commands and the poll daemon on the command
// line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/tesso57/feedwatch/internal/application/settings"
	"github.com/tesso57/feedwatch/internal/application/usecase"
	"github.com/tesso57/feedwatch/internal/infrastructure/config"
	"github.com/tesso57/feedwatch/internal/logger"
	"github.com/tesso57/feedwatch/internal/presentation/command"
)

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Config file path." type:"path"`
	User      string `help:"Sender of the command." default:"${user}"`
	Room      bool   `help:"Send the command from the shared room instead of a direct chat."`
	Ephemeral bool   `help:"Keep subscriptions in memory only."`

	out io.Writer `kong:"-"`
}

func (g *Globals) message() command.Message {
	return command.Message{Sender: g.User, Room: g.Room}
}

// CLI is the feedwatch command tree.
type CLI struct {
	Globals `kong:"embed"`

	Run     RunCmd     `cmd:"" help:"Poll feeds until interrupted."`
	Add     AddCmd     `cmd:"" help:"Subscribe to a feed."`
	Remove  RemoveCmd  `cmd:"" help:"Unsubscribe from a feed."`
	Feeds   FeedsCmd   `cmd:"" help:"List subscriptions with their last update."`
	Clear   ClearCmd   `cmd:"" help:"Remove every subscription (admins only)."`
	News    NewsCmd    `cmd:"" help:"Check for new items now."`
	History HistoryCmd `cmd:"" help:"Show recently delivered items."`
}

// RunCmd polls on the configured interval.
type RunCmd struct{}

// Run starts the scheduler and blocks until SIGINT/SIGTERM.
func (RunCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, g, g.out)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	scheduler := usecase.NewScheduler(a.poll, a.settings.Poll.Interval())
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	watcher, err := config.NewWatcher(a.configPath)
	if err != nil {
		logger.Warnf("[main] config changes will not be picked up: %v", err)
	} else {
		go watcher.Run(ctx, func(s settings.Settings) {
			if s.Poll.Interval() == scheduler.Interval() {
				return
			}
			if err := scheduler.SetInterval(s.Poll.Interval()); err != nil {
				logger.Warnf("[main] poll interval not changed: %v", err)
				return
			}
			logger.Infof("[main] poll interval changed to %s", s.Poll.Interval())
		})
	}

	logger.Infof("[main] feedwatch running, polling every %s", scheduler.Interval())
	<-ctx.Done()
	scheduler.Stop()
	logger.Infof("[main] feedwatch stopped")
	return nil
}

// AddCmd subscribes to a feed.
type AddCmd struct {
	URL  string   `arg:"" help:"Feed URL."`
	Name []string `arg:"" help:"Nickname, may span several words."`
}

// Run adds the subscription.
func (c AddCmd) Run(g *Globals) error {
	return withApp(g, func(ctx context.Context, a *app) string {
		return a.handler.Add(ctx, g.message(), append([]string{c.URL}, c.Name...))
	})
}

// RemoveCmd unsubscribes from a feed.
type RemoveCmd struct {
	Name []string `arg:"" help:"Nickname of the feed."`
}

// Run removes the subscription.
func (c RemoveCmd) Run(g *Globals) error {
	return withApp(g, func(ctx context.Context, a *app) string {
		return a.handler.Remove(ctx, g.message(), strings.Join(c.Name, " "))
	})
}

// FeedsCmd lists subscriptions.
type FeedsCmd struct{}

// Run prints the listing.
func (FeedsCmd) Run(g *Globals) error {
	return withApp(g, func(ctx context.Context, a *app) string {
		return a.handler.Feeds(ctx, g.message())
	})
}

// ClearCmd removes every subscription.
type ClearCmd struct{}

// Run clears the store.
func (ClearCmd) Run(g *Globals) error {
	return withApp(g, func(ctx context.Context, a *app) string {
		return a.handler.ClearFeeds(ctx, g.message())
	})
}

// NewsCmd checks feeds now.
type NewsCmd struct{}

// Run performs one manual check.
func (NewsCmd) Run(g *Globals) error {
	return withApp(g, func(ctx context.Context, a *app) string {
		return a.handler.News(ctx, g.message())
	})
}

func withApp(g *Globals, fn func(ctx context.Context, a *app) string) error {
	ctx := context.Background()
	a, err := openApp(ctx, g, g.out)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if reply := fn(ctx, a); reply != "" {
		_, err = fmt.Fprintln(g.out, reply)
	}
	return err
}

// HistoryCmd prints the delivery journal.
type HistoryCmd struct {
	Limit int `help:"Number of entries to show, 0 for all." default:"20"`
}

// Run prints the newest entries first.
func (c HistoryCmd) Run(g *Globals) error {
	a, err := openApp(context.Background(), g, g.out)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	entries, err := a.history.Recent(c.Limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(entries) == 0 {
		_, err = fmt.Fprintln(g.out, "No deliveries yet.")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(g.out, "%s [%s → %s] %s: %s\n",
			e.DeliveredAt.Local().Format(time.DateTime), e.Kind, e.Recipient, e.Feed, e.Link); err != nil {
			return err
		}
	}
	return nil
}

// Main parses args, runs the selected command and returns the exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	cli.out = stdout

	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}

	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("feedwatch"),
		kong.Description("Poll feed subscriptions and announce new items."),
		kong.Vars{"user": user},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
		kong.Bind(&cli.Globals),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if err := kctx.Run(); err != nil {
		fmt.Fprintf(stderr, "feedwatch: %v\n", err)
		if isConfigError(err) {
			return 2
		}
		return 1
	}
	return 0
}
