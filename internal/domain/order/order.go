package order

import (
	"errors"
	"strings"
	"time"

	"logistics/internal/domain/geo"

	"github.com/google/uuid"
)

// Order is the domain entity corresponding to the `orders` table.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	Pickup     geo.Point
	Dropoff    geo.Point
	VehicleID  string
	DriverID   string
	Version    int64 // bumped by every transition; carried as the event sequence
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	ErrCustomerRequired    = errors.New("customer id is required")
	ErrVehicleRequired     = errors.New("vehicle id is required")
	ErrDriverRequired      = errors.New("driver id is required")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrAlreadyMatchedOther = errors.New("order is already matched to another vehicle")
)

// New creates a pending order.
func New(customerID string, pickup, dropoff geo.Point) (*Order, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if err := pickup.Validate(); err != nil {
		return nil, err
	}
	if err := dropoff.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     StatusPending,
		Pickup:     pickup,
		Dropoff:    dropoff,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Match assigns the vehicle and driver and moves pending -> processing.
// Matching again with the same pair is a no-op.
func (o *Order) Match(vehicleID, driverID string) (bool, error) {
	vehicleID, driverID = strings.TrimSpace(vehicleID), strings.TrimSpace(driverID)
	if vehicleID == "" {
		return false, ErrVehicleRequired
	}
	if driverID == "" {
		return false, ErrDriverRequired
	}

	if o.Status == StatusProcessing {
		if o.VehicleID == vehicleID && o.DriverID == driverID {
			return false, nil
		}
		return false, ErrAlreadyMatchedOther
	}
	if !o.Status.CanTransitionTo(StatusProcessing) {
		return false, ErrInvalidTransition
	}

	o.VehicleID = vehicleID
	o.DriverID = driverID
	o.advance(StatusProcessing)
	return true, nil
}

// TransitionTo applies next. A repeat of the current status is a no-op.
func (o *Order) TransitionTo(next Status) (bool, error) {
	if !next.Valid() {
		return false, ErrInvalidStatus
	}
	if o.Status == next {
		return false, nil
	}
	if next == StatusProcessing {
		// only Match reaches processing, it needs the vehicle
		return false, ErrInvalidTransition
	}
	if !o.Status.CanTransitionTo(next) {
		return false, ErrInvalidTransition
	}
	o.advance(next)
	return true, nil
}

func (o *Order) advance(next Status) {
	o.Status = next
	o.Version++
	o.UpdatedAt = time.Now().UTC()
}
