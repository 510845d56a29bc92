package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/YelzhanWeb/dispatch/internal/domain"
	"github.com/YelzhanWeb/dispatch/internal/interfaces"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type binding struct {
	queue, key, exchange string
}

type fakeChannel struct {
	mu        sync.Mutex
	published []published
	exchanges map[string]string
	bindings  []binding
	deliver   chan amqp.Delivery
	closeCh   chan *amqp.Error
	closed    bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges: map[string]string{},
		deliver:   make(chan amqp.Delivery, 8),
		closeCh:   make(chan *amqp.Error, 1),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (Queue, error) {
	if name == "" {
		name = "amq.gen-test"
	}
	return Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{name, key, exchange})
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliver, nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) NotifyClose() <-chan *amqp.Error { return f.closeCh }

type fakeConn struct {
	mu         sync.Mutex
	channels   []*fakeChannel
	closed     bool
	reconnects int
	failOpen   int
}

func (f *fakeConn) Channel() (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen > 0 {
		f.failOpen--
		return nil, errors.New("connection is closed")
	}
	ch := newFakeChannel()
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeConn) Close() error                    { return nil }
func (f *fakeConn) NotifyClose() <-chan *amqp.Error { return make(chan *amqp.Error) }

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	f.closed = false
	return nil
}

func (f *fakeConn) channel(i int) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.channels) {
		return nil
	}
	return f.channels[i]
}

type ackRecorder struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return nil }

func (a *ackRecorder) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}

func TestPublisher_RoutingKeys(t *testing.T) {
	conn := &fakeConn{}
	pub := NewPublisher(conn)
	staffID, restID := uuid.New(), uuid.New()
	msg := interfaces.NotificationMessage{Event: interfaces.EventOrderAssigned, OrderID: uuid.New(), RestaurantID: restID}

	require.NoError(t, pub.NotifyStaff(context.Background(), staffID, msg))
	require.NoError(t, pub.NotifyRestaurantRoom(context.Background(), restID, msg))
	require.NoError(t, pub.NotifyGlobal(context.Background(), msg))
	require.NoError(t, pub.PublishOrderEvent(context.Background(), interfaces.OrderEventMessage{
		OrderID: msg.OrderID, OldStatus: domain.StatusPending, NewStatus: domain.StatusAccepted,
	}))

	require.Len(t, conn.channels, 4)
	want := []struct{ exchange, key string }{
		{DispatchExchange, "staff." + staffID.String()},
		{DispatchExchange, "restaurant." + restID.String()},
		{DispatchExchange, GlobalKey},
		{OrderEventsExchange, "order.accepted"},
	}
	for i, w := range want {
		ch := conn.channels[i]
		require.Len(t, ch.published, 1)
		assert.Equal(t, w.exchange, ch.published[0].exchange)
		assert.Equal(t, w.key, ch.published[0].key)
		assert.Equal(t, "topic", ch.exchanges[w.exchange])
		assert.True(t, ch.closed, "publish channels are closed after use")
	}

	var decoded interfaces.NotificationMessage
	require.NoError(t, json.Unmarshal(conn.channels[0].published[0].msg.Body, &decoded))
	assert.Equal(t, interfaces.EventOrderAssigned, decoded.Event)
	assert.Equal(t, amqp.Persistent, conn.channels[3].published[0].msg.DeliveryMode)
}

func TestConsumer_OrderEventsAckAndDeadLetter(t *testing.T) {
	conn := &fakeConn{}
	c := NewConsumer(conn, 1, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeOrderEvents(ctx, func(ctx context.Context, body []byte) error {
			handled <- string(body)
			if string(body) == "bad" {
				return errors.New("cannot parse")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return conn.channel(0) != nil }, time.Second, time.Millisecond)
	ch := conn.channel(0)

	acks := &ackRecorder{}
	ch.deliver <- amqp.Delivery{Acknowledger: acks, Body: []byte("good")}
	ch.deliver <- amqp.Delivery{Acknowledger: acks, Body: []byte("bad")}
	<-handled
	<-handled

	require.Eventually(t, func() bool {
		a, n := acks.counts()
		return a == 1 && n == 1
	}, time.Second, time.Millisecond)

	ch.mu.Lock()
	assert.Contains(t, ch.bindings, binding{OrderEventsQueue, AllOrderEventKey, OrderEventsExchange})
	assert.Equal(t, "fanout", ch.exchanges[orderEventsDLX])
	ch.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConsumer_NotificationBindings(t *testing.T) {
	conn := &fakeConn{}
	c := NewConsumer(conn, 1, logger.Nop())
	staffID := uuid.New()
	keys := []string{GlobalKey, StaffKey(staffID)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeNotifications(ctx, keys, func(ctx context.Context, body []byte) error { return nil })
	}()

	require.Eventually(t, func() bool {
		ch := conn.channel(0)
		if ch == nil {
			return false
		}
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.bindings) == 2
	}, time.Second, time.Millisecond)

	ch := conn.channel(0)
	ch.mu.Lock()
	assert.Equal(t, []binding{
		{"amq.gen-test", GlobalKey, DispatchExchange},
		{"amq.gen-test", "staff." + staffID.String(), DispatchExchange},
	}, ch.bindings)
	ch.mu.Unlock()

	cancel()
	<-done
}

func TestConsumer_ReconnectsAfterChannelLoss(t *testing.T) {
	conn := &fakeConn{}
	c := &consumer{conn: conn, prefetch: 1, logger: logger.Nop(), retry: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeOrderEvents(ctx, func(ctx context.Context, body []byte) error { return nil })
	}()

	require.Eventually(t, func() bool { return conn.channel(0) != nil }, time.Second, time.Millisecond)
	conn.mu.Lock()
	conn.closed = true
	conn.mu.Unlock()
	conn.channel(0).closeCh <- &amqp.Error{Code: 320, Reason: "CONNECTION_FORCED"}

	require.Eventually(t, func() bool { return conn.channel(1) != nil }, time.Second, time.Millisecond)
	conn.mu.Lock()
	assert.Equal(t, 1, conn.reconnects)
	conn.mu.Unlock()

	cancel()
	<-done
}
