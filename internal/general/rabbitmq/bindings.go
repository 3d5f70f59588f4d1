package rabbitmq

import (
	"fmt"

	"logistics/internal/general/contracts"
)

// DeclareTopology idempotently declares the durable exchange, the per-service
// inbox queues and their bindings.
func DeclareTopology(ch Channel) error {
	// 1. Exchanges
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangeLogisticsTopic, "topic"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// 2. Queues
	queues := []string{
		contracts.QueueOrderEvents,
		contracts.QueueFleetUserEvents,
		contracts.QueueMatchingUserEvents,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings
	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{contracts.QueueOrderEvents, contracts.ExchangeLogisticsTopic, contracts.RouteOrderPrefix + "#"},
		{contracts.QueueFleetUserEvents, contracts.ExchangeLogisticsTopic, contracts.RouteUserPrefix + "#"},
		{contracts.QueueMatchingUserEvents, contracts.ExchangeLogisticsTopic, contracts.RouteUserPrefix + "#"},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
