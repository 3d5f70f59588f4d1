package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const handlerTimeout = 30 * time.Second

// Disposition tells Consume how to settle a delivery.
type Disposition int

const (
	Ack     Disposition = iota // processed or deliberately ignored
	Requeue                    // transient failure, deliver again
	Drop                       // poison message, discard without requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Drop:
		return "dropped"
	}
	return "unknown"
}

// HandlerFunc processes one delivery and decides how it is settled.
type HandlerFunc func(ctx context.Context, d amqp.Delivery) Disposition

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotInitialized
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	if prefetch < 0 {
		prefetch = 1
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
		}
	}

	return ch, nil
}

// Consume reads one queue with manual acks until ctx ends or the channel drops.
func (client *Client) Consume(ctx context.Context, queue, consumerTag string, prefetch int, handler HandlerFunc) error {
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("%w: closed while consuming %s: %w", ErrChannelUnavailable, queue, cerr)
			}
			return fmt.Errorf("%w: closed while consuming %s", ErrChannelUnavailable, queue)

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery stream for %s ended", ErrChannelUnavailable, queue)
			}

			hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
			disposition := handler(hCtx, d)
			cancel()

			switch disposition {
			case Requeue:
				_ = d.Nack(false, true)
			case Drop:
				_ = d.Nack(false, false)
			default:
				_ = d.Ack(false)
			}
		}
	}
}

// Subscribe keeps a consumer attached to queue across reconnects until ctx ends.
func (client *Client) Subscribe(ctx context.Context, queue, consumerTag string, prefetch int, handler HandlerFunc) error {
	for {
		if err := client.WaitReady(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		err := client.Consume(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			client.logger.Error(client.logCtx, "rabbitmq_consumer_interrupted", "Consumer interrupted; resubscribing", err,
				map[string]any{"queue": queue})
		}

		// wait out the backoff so a broken channel does not spin
		select {
		case <-time.After(client.backoff):
		case <-ctx.Done():
			return nil
		case <-client.closed:
			return ErrClientClosed
		}
	}
}
