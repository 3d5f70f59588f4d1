package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"logistics/internal/general/contracts"
	"logistics/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher sends event envelopes to one exchange.
type Publisher struct {
	client   *Client
	logger   *logger.Logger
	exchange string
}

// NewPublisher constructs a Publisher on top of client.
func NewPublisher(client *Client, logger *logger.Logger, exchange string) *Publisher {
	return &Publisher{client: client, logger: logger, exchange: exchange}
}

// Publish encodes evt and waits for the broker confirm. It does not wait for consumers.
func (p *Publisher) Publish(ctx context.Context, routingKey string, evt contracts.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("rabbitmq: encode event: %w", err)
	}

	err = p.client.PublishMessage(ctx, p.exchange, routingKey, evt.ID, body)
	p.client.metrics.EventPublished(routingKey, err)

	details := map[string]any{
		"exchange":    p.exchange,
		"routing_key": routingKey,
		"event":       evt.Kind,
		"message_id":  evt.ID,
	}
	if err != nil {
		p.logger.Error(ctx, "event_publish_failed", "Failed to publish event", err, details)
		return err
	}

	p.logger.Info(ctx, "event_published", "Event published", details)
	return nil
}

// PublishMessage publishes a persistent JSON message and waits for its confirm.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if not connected
	if conn == nil || conn.IsClosed() || ch == nil || ch.IsClosed() {
		return ErrNotInitialized
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	tag := ch.GetNextPublishSeqNo()
	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return err
	}

	for {
		select {
		case c, ok := <-confirms:
			if !ok {
				return fmt.Errorf("%w: confirm stream closed", ErrNotInitialized)
			}
			// late confirm of an earlier publish that already timed out
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return ErrPublishNacked
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
