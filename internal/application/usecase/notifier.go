package usecase

import (
	"context"
	"time"

	"github.com/tesso57/feedwatch/internal/domain/reading"
)

// MessageKind tells the transport how to deliver a message.
type MessageKind int

const (
	// Direct is a private message to one user.
	Direct MessageKind = iota
	// Broadcast is a message to the shared room.
	Broadcast
)

func (k MessageKind) String() string {
	if k == Broadcast {
		return "broadcast"
	}
	return "direct"
}

// Notifier delivers outbound messages. Delivery is fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, recipient, text string, kind MessageKind) error
}

// Delivery records one announced item.
type Delivery struct {
	TickID    string
	Feed      string
	Scope     string
	Recipient string
	Kind      MessageKind
	Item      reading.Item
	At        time.Time
}

// DeliveryLog keeps a journal of announced items.
type DeliveryLog interface {
	Record(ctx context.Context, d Delivery) error
}
