package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"logistics/internal/general/contracts"
	"logistics/internal/ports"
)

// outboxRelayLock is the transaction-scoped advisory lock held by the relay
// that currently owns the outbox.
const outboxRelayLock int64 = 0x6f7574626f78 // "outbox"

// OutboxRepo stores order events next to the order transition that produced them.
type OutboxRepo struct{}

func NewOutboxRepo() ports.OutboxRepository {
	return &OutboxRepo{}
}

// Add queues evt for publishing under routingKey.
func (repo *OutboxRepo) Add(ctx context.Context, routingKey string, evt contracts.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_outbox (event_id, routing_key, payload)
		VALUES ($1, $2, $3)
	`, evt.ID, routingKey, body)
	return err
}

// ClaimPending takes the relay lock, then locks the oldest limit unpublished rows.
// Relays run one at a time until their transaction ends, so rows are always
// published in id order.
func (repo *OutboxRepo) ClaimPending(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxRelayLock); err != nil {
		return nil, fmt.Errorf("outbox relay lock: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, routing_key, payload, attempts
		FROM order_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.OutboxMessage
	for rows.Next() {
		var msg ports.OutboxMessage
		var payload []byte
		if err := rows.Scan(&msg.ID, &msg.RoutingKey, &payload, &msg.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &msg.Event); err != nil {
			return nil, fmt.Errorf("outbox row %d: %w", msg.ID, err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (repo *OutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE order_outbox SET published_at = now(), last_error = NULL WHERE id = $1
	`, id)
	return err
}

// RecordFailure bumps the attempt counter and keeps the last publish error.
func (repo *OutboxRepo) RecordFailure(ctx context.Context, id int64, reason string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE order_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, id, reason)
	return err
}
