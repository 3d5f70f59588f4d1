package service

import (
	"context"
	"time"

	"logistics/internal/general/logger"
	"logistics/internal/ports"
)

// RelayOutbox publishes pending outbox rows in id order. It stops at the first
// publish failure so later events for the same order never overtake it.
func (service *matchingService) RelayOutbox(ctx context.Context) (int, error) {
	sent := 0
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		msgs, err := service.outbox.ClaimPending(ctx, outboxBatch)
		if err != nil {
			return err
		}

		for _, msg := range msgs {
			if err := service.publisher.Publish(ctx, msg.RoutingKey, msg.Event); err != nil {
				service.logger.Warn(ctx, "outbox_publish_deferred", "Publish failed; event stays in the outbox", map[string]any{
					"outbox_id":   msg.ID,
					"event":       msg.Event.Kind,
					"routing_key": msg.RoutingKey,
					"attempts":    msg.Attempts + 1,
					"reason":      err.Error(),
				})
				return service.outbox.RecordFailure(ctx, msg.ID, err.Error())
			}
			if err := service.outbox.MarkPublished(ctx, msg.ID); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	return sent, err
}

// relayAfterCommit pushes freshly committed events without waiting for the relay tick.
func (service *matchingService) relayAfterCommit(ctx context.Context) {
	if _, err := service.RelayOutbox(context.WithoutCancel(ctx)); err != nil {
		service.logger.Error(ctx, "outbox_relay_failed", "Failed to relay outbox", err, nil)
	}
}

// OutboxRelay republishes outbox rows left behind by broker outages.
type OutboxRelay struct {
	svc    ports.MatchingService
	logger *logger.Logger
}

func NewOutboxRelay(svc ports.MatchingService, logger *logger.Logger) *OutboxRelay {
	return &OutboxRelay{svc: svc, logger: logger}
}

// Run relays every interval until ctx ends.
func (relay *OutboxRelay) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := relay.svc.RelayOutbox(ctx)
			if err != nil {
				relay.logger.Error(ctx, "outbox_relay_failed", "Failed to relay outbox", err, nil)
				continue
			}
			if n > 0 {
				relay.logger.Info(ctx, "outbox_relayed", "Relayed pending events", map[string]any{"count": n})
			}
		}
	}
}
