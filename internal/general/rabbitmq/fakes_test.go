package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	dialedAt []time.Time
	failDial int // number of upcoming dials to fail
	failChan bool
}

func (d *fakeDialer) Dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialedAt = append(d.dialedAt, time.Now())
	if d.failDial > 0 {
		d.failDial--
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{failChannel: d.failChan}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialedAt)
}

func (d *fakeDialer) DialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.dialedAt...)
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeConn struct {
	mu          sync.Mutex
	closed      bool
	failChannel bool
	notify      []chan *amqp.Error
	channels    []*fakeChannel
}

func (c *fakeConn) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failChannel {
		return nil, errors.New("channel max reached")
	}
	ch := &fakeChannel{conn: c, deliveries: make(chan amqp.Delivery, 16)}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(r chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, r)
	return r
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.shutdown(nil)
	return nil
}

// Drop simulates a broker-side connection loss.
func (c *fakeConn) Drop() {
	c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"})
}

func (c *fakeConn) shutdown(reason *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	notify := c.notify
	c.notify = nil
	channels := c.channels
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(reason)
	}
	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
}

func (c *fakeConn) Channels() []*fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeChannel(nil), c.channels...)
}

type fakeChannel struct {
	conn *fakeConn

	mu         sync.Mutex
	closed     bool
	nack       bool
	hold       bool // withhold confirms until Release
	held       []amqp.Confirmation
	confirms   chan amqp.Confirmation
	notify     []chan *amqp.Error
	published  []amqp.Publishing
	keys       []string
	queues     []string
	bindings   []string
	prefetch   int
	deliveries chan amqp.Delivery
	consuming  string
}

func (ch *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.queues = append(ch.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.bindings = append(ch.bindings, exchange+"/"+key+"->"+name)
	return nil
}

func (ch *fakeChannel) Qos(prefetch, _ int, _ bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.prefetch = prefetch
	return nil
}

func (ch *fakeChannel) Confirm(bool) error { return nil }

func (ch *fakeChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.confirms = c
	return c
}

func (ch *fakeChannel) NotifyReturn(c chan amqp.Return) chan amqp.Return { return c }

func (ch *fakeChannel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.notify = append(ch.notify, c)
	return c
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.published = append(ch.published, msg)
	ch.keys = append(ch.keys, key)
	c := amqp.Confirmation{DeliveryTag: uint64(len(ch.published)), Ack: !ch.nack}
	if ch.hold {
		ch.held = append(ch.held, c)
		return nil
	}
	if ch.confirms != nil {
		ch.confirms <- c
	}
	return nil
}

func (ch *fakeChannel) GetNextPublishSeqNo() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return uint64(len(ch.published)) + 1
}

// Release delivers withheld confirms and stops withholding new ones.
func (ch *fakeChannel) Release() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.hold = false
	for _, c := range ch.held {
		if ch.confirms != nil {
			ch.confirms <- c
		}
	}
	ch.held = nil
}

func (ch *fakeChannel) Consume(queue, consumer string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.consuming = queue
	return ch.deliveries, nil
}

func (ch *fakeChannel) Cancel(string, bool) error { return nil }

func (ch *fakeChannel) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *fakeChannel) Close() error {
	ch.shutdown(nil)
	return nil
}

func (ch *fakeChannel) shutdown(reason *amqp.Error) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	notify := ch.notify
	ch.notify = nil
	confirms := ch.confirms
	ch.confirms = nil
	ch.mu.Unlock()

	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
	if confirms != nil {
		close(confirms)
	}
}

func (ch *fakeChannel) Published() ([]amqp.Publishing, []string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]amqp.Publishing(nil), ch.published...), append([]string(nil), ch.keys...)
}

func (ch *fakeChannel) Consuming() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.consuming
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (a *fakeAck) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAck) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAck) settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks) + len(a.nacks)
}
