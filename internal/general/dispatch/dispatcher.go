package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"logistics/internal/general/contracts"
	"logistics/internal/general/dedup"
	"logistics/internal/general/logger"
	"logistics/internal/general/metrics"
	"logistics/internal/general/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent marks handler failures that redelivery cannot fix.
var ErrPermanent = errors.New("permanent handler failure")

// Permanent wraps err so the dispatcher drops the message instead of requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, contracts.ErrMissingField) ||
		errors.Is(err, contracts.ErrMalformed)
}

// HandlerFunc applies one event.
type HandlerFunc func(ctx context.Context, evt contracts.Event) error

// Subscriber attaches a delivery handler to a queue until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, queue, consumerTag string, prefetch int, handler rabbitmq.HandlerFunc) error
}

// Dispatcher routes decoded events to handlers by kind and settles each delivery.
type Dispatcher struct {
	logger  *logger.Logger
	store   dedup.Store
	metrics *metrics.Metrics

	mu       sync.RWMutex
	handlers map[contracts.Kind]HandlerFunc
}

// New builds a Dispatcher. A nil store falls back to an in-memory one.
func New(logger *logger.Logger, store dedup.Store, m *metrics.Metrics) *Dispatcher {
	if store == nil {
		store = dedup.NewMemory(dedup.DefaultTTL)
	}
	return &Dispatcher{
		logger:   logger,
		store:    store,
		metrics:  m,
		handlers: make(map[contracts.Kind]HandlerFunc),
	}
}

// Handle registers h for kind, replacing any previous handler.
func (d *Dispatcher) Handle(kind contracts.Kind, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Run consumes queue until ctx ends, resubscribing after channel loss.
func (d *Dispatcher) Run(ctx context.Context, sub Subscriber, queue, consumerTag string, prefetch int) error {
	d.logger.Info(ctx, "consumer_started", "Event consumer started", map[string]any{
		"queue":    queue,
		"prefetch": prefetch,
	})
	err := sub.Subscribe(ctx, queue, consumerTag, prefetch, d.Deliver)
	d.logger.Info(context.WithoutCancel(ctx), "consumer_stopped", "Event consumer stopped", map[string]any{"queue": queue})
	return err
}

// Deliver adapts Dispatch to the broker's delivery type.
func (d *Dispatcher) Deliver(ctx context.Context, msg amqp.Delivery) rabbitmq.Disposition {
	return d.Dispatch(ctx, msg.Body, msg.Redelivered)
}

// Dispatch processes one message body and reports how it must be settled.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, redelivered bool) rabbitmq.Disposition {
	start := time.Now()

	evt, err := contracts.Decode(body)
	if err != nil {
		d.logger.Error(ctx, "message_decode_failed", "Dropping undecodable message", err, map[string]any{
			"size": len(body),
		})
		d.metrics.EventConsumed("", "malformed", 0)
		return rabbitmq.Drop
	}

	d.mu.RLock()
	h, ok := d.handlers[evt.Kind]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug(ctx, "event_ignored", "Ignored event", map[string]any{"event": evt.Kind})
		d.metrics.EventConsumed(string(evt.Kind), "ignored", 0)
		return rabbitmq.Ack
	}

	details := map[string]any{"event": evt.Kind, "event_id": evt.ID, "producer": evt.Producer}
	// without a key the state machines' conditional transitions are the only guard
	key := evt.Key()

	var seen bool
	if key != "" {
		seen, err = d.store.Seen(ctx, key)
		if err != nil {
			d.logger.Error(ctx, "dedup_lookup_failed", "Dedup store unavailable; processing anyway", err, details)
		}
	}
	if seen {
		d.logger.Info(ctx, "event_duplicate", "Skipping already processed event", details)
		d.metrics.EventConsumed(string(evt.Kind), "duplicate", 0)
		return rabbitmq.Ack
	}

	if err := d.invoke(ctx, h, evt); err != nil {
		switch {
		case isPermanent(err):
			d.logger.Error(ctx, "event_rejected", "Dropping event that cannot be applied", err, details)
			d.metrics.EventConsumed(string(evt.Kind), "rejected", time.Since(start))
			return rabbitmq.Drop
		case redelivered:
			d.logger.Error(ctx, "event_failed", "Dropping event after failed redelivery", err, details)
			d.metrics.EventConsumed(string(evt.Kind), "failed", time.Since(start))
			return rabbitmq.Drop
		default:
			d.logger.Error(ctx, "event_retry", "Handler failed; requeueing once", err, details)
			d.metrics.EventConsumed(string(evt.Kind), "requeued", time.Since(start))
			return rabbitmq.Requeue
		}
	}

	if key != "" {
		if err := d.store.Mark(ctx, key); err != nil {
			d.logger.Error(ctx, "dedup_mark_failed", "Failed to remember processed event", err, details)
		}
	}
	d.logger.Debug(ctx, "event_processed", "Event processed", details)
	d.metrics.EventConsumed(string(evt.Kind), "ack", time.Since(start))
	return rabbitmq.Ack
}

// invoke runs h and turns a panic into a permanent error.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, evt contracts.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", p))
		}
	}()
	return h(ctx, evt)
}
