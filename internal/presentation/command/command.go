// Package command maps chat-style feed commands onto the subscription and
// poll services and renders their replies.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tesso57/feedwatch/internal/application/usecase"
	"github.com/tesso57/feedwatch/internal/domain/subscription"
	"github.com/tesso57/feedwatch/internal/logger"
)

// Message describes where a command came from.
type Message struct {
	Sender string
	// Room is true for commands sent in the shared room, false for direct chats.
	Room bool
}

// Poller runs manual checks.
type Poller interface {
	CheckNow(ctx context.Context, scope subscription.Scope) usecase.PollReport
}

// Handler implements the feed commands.
type Handler struct {
	Subs           usecase.SubscriptionService
	Poll           Poller
	GroupRecipient string
	IsAdmin        func(user string) bool
}

const unknownSender = "Sorry.. I don't know who you are"

// userScope is the sender's personal scope. ok is false for a blank sender,
// whose scope would be the group's.
func userScope(msg Message) (subscription.Scope, bool) {
	scope := subscription.UserScope(msg.Sender)
	return scope, !scope.IsGroup()
}

// viewScope is the scope a listing or check refers to.
func viewScope(msg Message) (subscription.Scope, bool) {
	if msg.Room {
		return subscription.GroupScope(), true
	}
	return userScope(msg)
}

// Add handles "add <url> <name...>". Room commands land in the group scope
// unless no group recipient is configured.
func (h Handler) Add(ctx context.Context, msg Message, args []string) string {
	if len(args) < 2 {
		return "Please supply a feed url and a nickname"
	}
	url := strings.TrimSpace(args[0])
	name := strings.TrimSpace(strings.Join(args[1:], " "))

	scope, ok := subscription.GroupScope(), true
	if !msg.Room || h.GroupRecipient == "" {
		scope, ok = userScope(msg)
	}
	if !ok {
		return unknownSender
	}

	if _, err := h.Subs.Add(ctx, url, name, scope); err != nil {
		if errors.Is(err, subscription.ErrDuplicateName) {
			return "this feed already exists"
		}
		logger.Warnf("[command] add %q failed: %v", name, err)
		return fmt.Sprintf("Could not add feed: %v", err)
	}
	return fmt.Sprintf("Feed %s added as %s for %s", url, name, scope)
}

// Remove handles "remove <name>", trying the sender's feeds before the
// group's.
func (h Handler) Remove(ctx context.Context, msg Message, args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "Please supply a feed nickname"
	}
	user, ok := userScope(msg)
	if !ok {
		return unknownSender
	}
	removed, ok, err := h.Subs.Remove(ctx, name, user, subscription.GroupScope())
	if err != nil {
		logger.Warnf("[command] remove %q failed: %v", name, err)
		return fmt.Sprintf("Could not remove feed: %v", err)
	}
	if !ok {
		return "Sorry.. unknown feed..."
	}
	return fmt.Sprintf("Feed %s was successfully removed.", removed.Name)
}

// Feeds lists the subscriptions of the message's scope with their watermark.
func (h Handler) Feeds(ctx context.Context, msg Message) string {
	scope, ok := viewScope(msg)
	if !ok {
		return unknownSender
	}
	subs, err := h.Subs.List(ctx, scope)
	if err != nil {
		logger.Warnf("[command] listing feeds for %s failed: %v", scope, err)
		return fmt.Sprintf("Could not list feeds: %v", err)
	}
	var b strings.Builder
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n%s  last updated: %s (from %s)", sub.Name, sub.LastSeen.Format(time.DateTime), sub.URL)
	}
	return b.String()
}

// ClearFeeds removes every subscription. Admins only.
func (h Handler) ClearFeeds(ctx context.Context, msg Message) string {
	if h.IsAdmin == nil || !h.IsAdmin(msg.Sender) {
		return "You're not allowed to access this command"
	}
	if err := h.Subs.ClearAll(ctx); err != nil {
		logger.Errorf("[command] clear feeds failed: %v", err)
		return fmt.Sprintf("Could not clear feeds: %v", err)
	}
	return "all rss feeds were removed"
}

// News checks the message's scope for new items now. Results arrive through
// the notifier.
func (h Handler) News(ctx context.Context, msg Message) string {
	scope, ok := viewScope(msg)
	if !ok {
		return unknownSender
	}
	h.Poll.CheckNow(ctx, scope)
	return ""
}
