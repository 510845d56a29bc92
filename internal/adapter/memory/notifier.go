package memory

import (
	"context"
	"sync"

	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
)

// Channel addressing modes recorded by Notifier.
const (
	ChannelStaff  = "staff"
	ChannelRoom   = "room"
	ChannelGlobal = "global"
)

// Delivery is one recorded notification.
type Delivery struct {
	Channel string
	Target  uuid.UUID
	Message interfaces.NotificationMessage
}

// OrderEvent is one recorded order-event publication.
type OrderEvent = interfaces.OrderEventMessage

// Notifier records every notification instead of sending it.
type Notifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	events     []OrderEvent

	Fail error
}

var _ interfaces.MessagePublisher = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) record(d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.deliveries = append(n.deliveries, d)
	return nil
}

func (n *Notifier) NotifyStaff(ctx context.Context, staffID uuid.UUID, msg interfaces.NotificationMessage) error {
	return n.record(Delivery{Channel: ChannelStaff, Target: staffID, Message: msg})
}

func (n *Notifier) NotifyRestaurantRoom(ctx context.Context, restaurantID uuid.UUID, msg interfaces.NotificationMessage) error {
	return n.record(Delivery{Channel: ChannelRoom, Target: restaurantID, Message: msg})
}

func (n *Notifier) NotifyGlobal(ctx context.Context, msg interfaces.NotificationMessage) error {
	return n.record(Delivery{Channel: ChannelGlobal, Message: msg})
}

func (n *Notifier) PublishOrderEvent(ctx context.Context, msg interfaces.OrderEventMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.events = append(n.events, msg)
	return nil
}

// Deliveries returns a copy of everything recorded so far.
func (n *Notifier) Deliveries() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery(nil), n.deliveries...)
}

// ByEvent filters recorded deliveries by event name.
func (n *Notifier) ByEvent(event string) []Delivery {
	var out []Delivery
	for _, d := range n.Deliveries() {
		if d.Message.Event == event {
			out = append(out, d)
		}
	}
	return out
}

func (n *Notifier) OrderEvents() []OrderEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]OrderEvent(nil), n.events...)
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = nil
	n.events = nil
}
