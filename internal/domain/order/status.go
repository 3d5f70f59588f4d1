package order

import (
	"errors"
	"strings"
)

// Status is an order lifecycle state as stored in `orders.status`.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusInTransit  Status = "in_transit"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid order status")

// ParseStatus normalizes (lowercases+trims) and validates an order status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusProcessing, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (status Status) Terminal() bool {
	return status == StatusDelivered || status == StatusCancelled
}

// CanTransitionTo enforces pending -> processing -> in_transit -> delivered,
// with cancelled reachable from every non-terminal state.
func (status Status) CanTransitionTo(next Status) bool {
	if status.Terminal() {
		return false
	}
	switch next {
	case StatusCancelled:
		return true
	case StatusProcessing:
		return status == StatusPending
	case StatusInTransit:
		return status == StatusProcessing
	case StatusDelivered:
		return status == StatusInTransit
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}
