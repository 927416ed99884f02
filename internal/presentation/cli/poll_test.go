package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesso57/feedwatch/internal/application/usecase"
	"github.com/tesso57/feedwatch/internal/domain/subscription"
	"github.com/tesso57/feedwatch/internal/infrastructure/feed"
	"github.com/tesso57/feedwatch/internal/infrastructure/kv"
	"github.com/tesso57/feedwatch/internal/infrastructure/notify"
	"github.com/tesso57/feedwatch/internal/infrastructure/subscriptions"
	"github.com/tesso57/feedwatch/internal/presentation/command"
)

// feedServer serves one item per URL from a table the test can change.
type feedServer struct {
	mu    sync.Mutex
	items map[string]*gofeed.Item
}

func stubFeeds(t *testing.T) *feedServer {
	t.Helper()
	s := &feedServer{items: map[string]*gofeed.Item{}}
	original := feed.ParserFunc
	feed.ParserFunc = func(_ context.Context, url string) (*gofeed.Feed, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := &gofeed.Feed{}
		if item, ok := s.items[url]; ok {
			copied := *item
			out.Items = []*gofeed.Item{&copied}
		}
		return out, nil
	}
	t.Cleanup(func() { feed.ParserFunc = original })
	return s
}

func (s *feedServer) publish(url, link string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[url] = &gofeed.Item{Title: link, Link: link, Description: "about " + link, PublishedParsed: &at}
}

func TestUndatedItemDeliveredOnce(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	original := feed.ParserFunc
	feed.ParserFunc = func(_ context.Context, _ string) (*gofeed.Feed, error) {
		return &gofeed.Feed{Items: []*gofeed.Item{{Title: "undated", Link: "http://a/undated", Description: "text"}}}, nil
	}
	t.Cleanup(func() { feed.ParserFunc = original })

	fetchedAt := created.Add(10 * time.Minute)
	fetcher := feed.NewFetcher(time.Second)
	fetcher.Now = func() time.Time { return fetchedAt }

	ctx := context.Background()
	store, err := subscriptions.Open(ctx, kv.NewMemory(), func() time.Time { return created })
	require.NoError(t, err)
	_, err = store.Add(ctx, "http://a/feed", "tech", subscription.UserScope("u1"))
	require.NoError(t, err)

	var out bytes.Buffer
	svc := usecase.NewPollService(store, fetcher, notify.NewConsole(&out, 0), "room")

	first := svc.PollAll(ctx)
	second := svc.PollAll(ctx)

	assert.Equal(t, 1, first.Delivered)
	assert.Equal(t, 0, second.Delivered)
	assert.Equal(t, 1, strings.Count(out.String(), "http://a/undated"))
	got, ok, err := store.Get(ctx, "tech", subscription.UserScope("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.LastSeen.Equal(fetchedAt))
}

func TestDaemonAndCommandsShareSQLiteStore(t *testing.T) {
	feeds := stubFeeds(t)
	cfg := writeConfig(t, "")
	ctx := context.Background()
	alice := command.Message{Sender: "alice"}

	open := func(out *bytes.Buffer) *app {
		a, err := openApp(ctx, &Globals{Config: cfg, User: "alice", out: out}, out)
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		return a
	}
	var daemonOut, cliOut bytes.Buffer
	daemon, cli := open(&daemonOut), open(&cliOut)

	assert.Equal(t, "Feed http://a/feed added as tech for alice", cli.handler.Add(ctx, alice, []string{"http://a/feed", "tech"}))
	first := time.Now().Add(time.Hour)
	feeds.publish("http://a/feed", "http://a/1", first)
	assert.Equal(t, 1, daemon.poll.PollAll(ctx).Delivered, "daemon sees subscriptions added after it started")

	// A watermark saved by the daemon keeps subscriptions added since.
	assert.Equal(t, "Feed http://b/feed added as go for alice", cli.handler.Add(ctx, alice, []string{"http://b/feed", "go"}))
	feeds.publish("http://a/feed", "http://a/2", first.Add(time.Hour))
	assert.Equal(t, 1, daemon.poll.PollAll(ctx).Delivered)
	listing := cli.handler.Feeds(ctx, alice)
	assert.Contains(t, listing, "\ngo  last updated: ")
	assert.Contains(t, listing, "\ntech  last updated: ")

	// Both processes poll the same new item; one of them delivers it.
	feeds.publish("http://b/feed", "http://b/1", first.Add(2*time.Hour))
	var wg sync.WaitGroup
	reports := make([]usecase.PollReport, 2)
	for i, a := range []*app{daemon, cli} {
		wg.Go(func() { reports[i] = a.poll.PollAll(ctx) })
	}
	wg.Wait()
	assert.Equal(t, 1, reports[0].Delivered+reports[1].Delivered)
	assert.Zero(t, reports[0].Failed+reports[1].Failed)
	assert.Equal(t, 1, strings.Count(daemonOut.String()+cliOut.String(), "http://b/1"))

	// Removal by the command side is not undone by the daemon.
	assert.Equal(t, "Feed go was successfully removed.", cli.handler.Remove(ctx, alice, "go"))
	feeds.publish("http://b/feed", "http://b/2", first.Add(3*time.Hour))
	assert.Equal(t, 0, daemon.poll.PollAll(ctx).Delivered)
	assert.NotContains(t, daemon.handler.Feeds(ctx, alice), "go  last updated")
}
