package ports

import (
	"context"

	"logistics/internal/domain/geo"
	"logistics/internal/general/contracts"
	"logistics/internal/general/validation"
)

// EventPublisher hands an event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, evt contracts.Event) error
}

// DriverDirectory is the part of the user/driver service the matching service reads.
type DriverDirectory interface {
	LookupDriver(ctx context.Context, id string) validation.Lookup[validation.DriverData]
	FindNearbyDrivers(ctx context.Context, loc geo.Point, radiusKM float64) []validation.DriverData
}

// ----- DTOs for Fleet Service -----

// StatusResult reports an entity status after an explicit action.
type StatusResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Changed   bool   `json:"changed"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CreateAssignmentInput is the validated body of POST /api/assignments.
type CreateAssignmentInput struct {
	DriverID  string
	VehicleID string
}

type AssignmentResult struct {
	AssignmentID string `json:"assignment_id"`
	DriverID     string `json:"driver_id"`
	VehicleID    string `json:"vehicle_id"`
	Status       string `json:"status"`
	UpdatedAt    string `json:"updated_at"`
}

// ----- Fleet Service Interface -----

// FleetService owns drivers, vehicles and assignments.
type FleetService interface {
	OnOrderMatched(ctx context.Context, evt contracts.Event) error
	OnOrderStatusChanged(ctx context.Context, evt contracts.Event) error
	OnUserRegistered(ctx context.Context, evt contracts.Event) error

	SetDriverOffline(ctx context.Context, driverID string) (StatusResult, error)
	SetDriverOnline(ctx context.Context, driverID string) (StatusResult, error)
	SetVehicleMaintenance(ctx context.Context, vehicleID string) (StatusResult, error)
	ReturnVehicleToService(ctx context.Context, vehicleID string) (StatusResult, error)

	CreateAssignment(ctx context.Context, in CreateAssignmentInput) (AssignmentResult, error)
	UpdateAssignmentStatus(ctx context.Context, assignmentID, status string) (AssignmentResult, error)

	DeleteDriver(ctx context.Context, driverID string) error
	DeleteVehicle(ctx context.Context, vehicleID string) error
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Matching Service -----

type CreateOrderInput struct {
	CustomerID string
	Pickup     geo.Point
	Dropoff    geo.Point
}

type MatchOrderInput struct {
	OrderID   string
	VehicleID string
	DriverID  string
}

type OrderResult struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Status     string    `json:"status"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	DriverID   string    `json:"driver_id,omitempty"`
	Pickup     geo.Point `json:"pickup"`
	Dropoff    geo.Point `json:"dropoff"`
	Version    int64     `json:"version"`
	UpdatedAt  string    `json:"updated_at"`
}

// ----- Matching Service Interface -----

// MatchingService owns orders and announces their transitions.
type MatchingService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (OrderResult, error)
	GetOrder(ctx context.Context, orderID string) (OrderResult, error)
	MatchOrder(ctx context.Context, in MatchOrderInput) (OrderResult, error)
	ChangeOrderStatus(ctx context.Context, orderID, status string) (OrderResult, error)
	Candidates(ctx context.Context, orderID string, radiusKM float64) ([]validation.DriverData, error)

	OnUserRegistered(ctx context.Context, evt contracts.Event) error

	// RelayOutbox publishes pending outbox rows and returns how many went out.
	RelayOutbox(ctx context.Context) (int, error)
}
