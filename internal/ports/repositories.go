package ports

import (
	"context"
	"errors"

	"logistics/internal/domain/assignment"
	"logistics/internal/domain/driver"
	"logistics/internal/domain/order"
	"logistics/internal/domain/vehicle"
	"logistics/internal/general/contracts"
)

// ErrNotFound is returned by repositories when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DriverRepository persists driver availability. Methods must run inside WithinTx.
type DriverRepository interface {
	GetForUpdate(ctx context.Context, id string) (*driver.Driver, error)
	UpdateStatus(ctx context.Context, d *driver.Driver) error
	Delete(ctx context.Context, id string) error
}

// VehicleRepository persists vehicle availability. Methods must run inside WithinTx.
type VehicleRepository interface {
	GetForUpdate(ctx context.Context, id string) (*vehicle.Vehicle, error)
	UpdateStatus(ctx context.Context, v *vehicle.Vehicle) error
	Delete(ctx context.Context, id string) error
}

// AssignmentRepository persists driver/vehicle pairings.
type AssignmentRepository interface {
	Create(ctx context.Context, a *assignment.Assignment) error
	GetForUpdate(ctx context.Context, id string) (*assignment.Assignment, error)
	UpdateStatus(ctx context.Context, a *assignment.Assignment) error
	HasActiveForDriver(ctx context.Context, driverID string) (bool, error)
	HasActiveForVehicle(ctx context.Context, vehicleID string) (bool, error)
}

// SettlementRepository remembers orders that reached a terminal status, so a late
// ORDER_MATCHED for them is ignored.
type SettlementRepository interface {
	Record(ctx context.Context, orderID, status string) error
	IsSettled(ctx context.Context, orderID string) (bool, error)
}

// OrderRepository persists orders.
type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
	GetForUpdate(ctx context.Context, id string) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
}

// OutboxMessage is an event waiting to be handed to the broker.
type OutboxMessage struct {
	ID         int64
	RoutingKey string
	Event      contracts.Event
	Attempts   int
}

// OutboxRepository stores events in the same transaction as the state change
// that produced them.
type OutboxRepository interface {
	Add(ctx context.Context, routingKey string, evt contracts.Event) error
	// ClaimPending locks up to limit unpublished rows in id order. Only one
	// claimant at a time holds rows; others wait for its transaction to end.
	ClaimPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, reason string) error
}
