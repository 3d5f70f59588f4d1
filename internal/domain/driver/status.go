package driver

import (
	"errors"
	"strings"
)

// Status is a driver availability as stored in `drivers.status`.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusOffline   Status = "OFFLINE"
)

var ErrInvalidStatus = errors.New("invalid driver status")

// ParseStatus normalizes (uppercases+trims) and validates a driver status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether the status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusAvailable, StatusBusy, StatusOffline:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is reachable from status in one step.
func (status Status) CanTransitionTo(next Status) bool {
	switch next {
	case StatusOffline:
		return status.Valid()
	case StatusBusy:
		return status == StatusAvailable
	case StatusAvailable:
		return status == StatusBusy || status == StatusOffline
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}
