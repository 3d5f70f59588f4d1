package vehicle

import (
	"errors"
	"strings"
	"time"
)

// Status is a vehicle availability as stored in `vehicles.status`.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusInUse       Status = "IN_USE"
	StatusMaintenance Status = "MAINTENANCE"
)

var (
	ErrInvalidStatus       = errors.New("invalid vehicle status")
	ErrInvalidStatusSwitch = errors.New("invalid vehicle status transition")
	ErrBoundToOtherOrder   = errors.New("vehicle is in use for another order")
)

// ParseStatus normalizes (uppercases+trims) and validates a vehicle status string.
// BUSY is accepted as an alias of IN_USE.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status == "BUSY" {
		return StatusInUse, nil
	}
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status Status) Valid() bool {
	switch status {
	case StatusAvailable, StatusInUse, StatusMaintenance:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is reachable from status in one step.
func (status Status) CanTransitionTo(next Status) bool {
	switch next {
	case StatusMaintenance:
		return status.Valid()
	case StatusInUse:
		return status == StatusAvailable
	case StatusAvailable:
		return status == StatusInUse || status == StatusMaintenance
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}

// Vehicle is the status-bearing part of a `vehicles` row.
type Vehicle struct {
	ID        string
	Status    Status
	OrderID   string // order the vehicle is serving; empty when none
	UpdatedAt time.Time
}

// MarkInUse moves AVAILABLE -> IN_USE for orderID. Repeating it for the same
// order is a no-op.
func (vehicle *Vehicle) MarkInUse(orderID string) (bool, error) {
	switch vehicle.Status {
	case StatusAvailable:
		vehicle.OrderID = orderID
		vehicle.setStatus(StatusInUse)
		return true, nil
	case StatusInUse:
		if vehicle.OrderID != "" && orderID != "" && vehicle.OrderID != orderID {
			return false, ErrBoundToOtherOrder
		}
		return false, nil
	default:
		return false, ErrInvalidStatusSwitch
	}
}

// Release moves IN_USE -> AVAILABLE when the vehicle serves orderID or no
// particular order. An empty orderID releases any binding.
func (vehicle *Vehicle) Release(orderID string) (bool, error) {
	switch vehicle.Status {
	case StatusInUse:
		if orderID != "" && vehicle.OrderID != "" && vehicle.OrderID != orderID {
			return false, ErrBoundToOtherOrder
		}
		vehicle.OrderID = ""
		vehicle.setStatus(StatusAvailable)
		return true, nil
	default:
		return false, nil
	}
}

// SendToMaintenance is the explicit workshop action; allowed from any state.
func (vehicle *Vehicle) SendToMaintenance() bool {
	if vehicle.Status == StatusMaintenance {
		return false
	}
	vehicle.OrderID = ""
	vehicle.setStatus(StatusMaintenance)
	return true
}

// ReturnToService moves MAINTENANCE -> AVAILABLE.
func (vehicle *Vehicle) ReturnToService() (bool, error) {
	switch vehicle.Status {
	case StatusAvailable:
		return false, nil
	case StatusMaintenance:
		vehicle.setStatus(StatusAvailable)
		return true, nil
	default:
		return false, ErrInvalidStatusSwitch
	}
}

func (vehicle *Vehicle) setStatus(s Status) {
	vehicle.Status = s
	vehicle.UpdatedAt = time.Now().UTC()
}
