package contracts

// Exchanges
const (
	ExchangeLogisticsTopic = "logistics_topic"
)

// Queues (one durable inbox per consuming service)
const (
	QueueOrderEvents        = "order-events"
	QueueFleetUserEvents    = "fleet.user-events"
	QueueMatchingUserEvents = "matching.user-events"
)

// Routing patterns
const (
	RouteOrderPrefix = "order." // {event}
	RouteUserPrefix  = "user."  // {event}
)

// Producers
const (
	ProducerMatching = "matching-service"
	ProducerFleet    = "fleet-service"
	ProducerAuth     = "auth-service"
)
