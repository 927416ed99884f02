package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tesso57/feedwatch/internal/domain/reading"
	"github.com/tesso57/feedwatch/internal/domain/subscription"
	"github.com/tesso57/feedwatch/internal/logger"
)

// NoNewsMessage is sent to a user whose manual check found nothing.
const NoNewsMessage = "No new news.\n"

// PollReport summarises one poll run.
type PollReport struct {
	TickID    string
	Checked   int
	Delivered int
	Failed    int
}

// PollService claims new items and routes them to the notifier. Runs are
// serialised within a process. An item is delivered only by the run whose
// Repo.Update advanced the watermark, so processes sharing a store deliver
// it once between them.
type PollService struct {
	Repo           SubscriptionRepository
	Fetcher        subscription.Fetcher
	Notifier       Notifier
	GroupRecipient string
	FetchTimeout   time.Duration
	// PlainText turns an item summary into message text.
	PlainText func(html string) string
	// History is optional.
	History DeliveryLog
	// Now stamps journal entries. Defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

// NewPollService constructs a PollService.
func NewPollService(repo SubscriptionRepository, fetcher subscription.Fetcher, notifier Notifier, groupRecipient string) *PollService {
	return &PollService{
		Repo:           repo,
		Fetcher:        fetcher,
		Notifier:       notifier,
		GroupRecipient: groupRecipient,
	}
}

// PollAll runs one tick over every subscription of every scope.
func (p *PollService) PollAll(ctx context.Context) PollReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger.Infof("[poll] polling rss feeds")
	subs, err := p.Repo.ListAll(ctx)
	if err != nil {
		return listFailed(err)
	}
	return p.poll(ctx, subs)
}

// CheckNow polls on demand. A user scope polls only that user's
// subscriptions and answers with NoNewsMessage when nothing was delivered;
// the group scope runs a full tick.
func (p *PollService) CheckNow(ctx context.Context, scope subscription.Scope) PollReport {
	if scope.IsGroup() {
		return p.PollAll(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	subs, err := p.Repo.List(ctx, scope)
	if err != nil {
		return listFailed(err)
	}
	report := p.poll(ctx, subs)
	if report.Delivered == 0 {
		logger.Infof("[poll] no new news for %s", scope.User())
		p.send(ctx, scope.User(), NoNewsMessage, Direct)
	}
	return report
}

func listFailed(err error) PollReport {
	report := PollReport{TickID: uuid.NewString(), Failed: 1}
	logger.Errorf("[poll] tick %s: loading subscriptions failed: %v", report.TickID, err)
	return report
}

func (p *PollService) poll(ctx context.Context, subs []subscription.Subscription) PollReport {
	report := PollReport{TickID: uuid.NewString()}
	for _, sub := range subs {
		if ctx.Err() != nil {
			logger.Warnf("[poll] tick %s interrupted: %v", report.TickID, ctx.Err())
			break
		}
		report.Checked++

		item, ok, err := p.claim(ctx, &sub)
		if err != nil {
			report.Failed++
			logger.Warnf("[poll] tick %s: %q (%s) failed: %v", report.TickID, sub.Name, sub.URL, err)
			continue
		}
		if !ok {
			continue
		}

		advanced, err := p.Repo.Update(ctx, sub)
		if err != nil {
			report.Failed++
			logger.Errorf("[poll] tick %s: saving %q failed: %v", report.TickID, sub.Name, err)
			continue
		}
		if !advanced {
			logger.Debugf("[poll] tick %s: %q already delivered by another run", report.TickID, sub.Name)
			continue
		}

		report.Delivered++
		p.deliver(ctx, report.TickID, sub, item)
	}
	logger.Debugf("[poll] tick %s done: checked=%d delivered=%d failed=%d",
		report.TickID, report.Checked, report.Delivered, report.Failed)
	return report
}

func (p *PollService) claim(ctx context.Context, sub *subscription.Subscription) (reading.Item, bool, error) {
	if p.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.FetchTimeout)
		defer cancel()
	}
	return sub.ClaimNewestItem(ctx, p.Fetcher)
}

func (p *PollService) deliver(ctx context.Context, tickID string, sub subscription.Subscription, item reading.Item) {
	recipient, kind := sub.Scope.User(), Direct
	if sub.Scope.IsGroup() {
		recipient, kind = p.GroupRecipient, Broadcast
	}
	if recipient == "" {
		logger.Warnf("[poll] no group recipient configured, dropping news from %q", sub.Name)
		return
	}
	p.send(ctx, recipient, NewsMessage(sub.Name, item, p.PlainText), kind)
	p.send(ctx, recipient, LinkMessage(item), kind)

	if p.History == nil {
		return
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	d := Delivery{
		TickID:    tickID,
		Feed:      sub.Name,
		Scope:     sub.Scope.String(),
		Recipient: recipient,
		Kind:      kind,
		Item:      item,
		At:        now(),
	}
	if err := p.History.Record(ctx, d); err != nil {
		logger.Warnf("[poll] recording delivery of %q failed: %v", sub.Name, err)
	}
}

func (p *PollService) send(ctx context.Context, recipient, text string, kind MessageKind) {
	if err := p.Notifier.Send(ctx, recipient, text, kind); err != nil {
		logger.Warnf("[poll] sending %s message to %s failed: %v", kind, recipient, err)
	}
}

// NewsMessage formats the first message announcing item.
func NewsMessage(feedName string, item reading.Item, plainText func(string) string) string {
	summary := item.Summary
	if plainText != nil {
		summary = plainText(summary)
	}
	return fmt.Sprintf("%s News from %s:\n%s", item.PublishedAt.Format(time.DateTime), feedName, summary)
}

// LinkMessage formats the second message carrying the item link.
func LinkMessage(item reading.Item) string {
	return fmt.Sprintf("\n%s\n", item.Link)
}
