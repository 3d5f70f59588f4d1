package assignment

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of a driver/vehicle pairing.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var (
	ErrInvalidStatus   = errors.New("invalid assignment status")
	ErrAlreadyClosed   = errors.New("assignment is already closed")
	ErrDriverRequired  = errors.New("driver id is required")
	ErrVehicleRequired = errors.New("vehicle id is required")
)

func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	switch status {
	case StatusActive, StatusCompleted, StatusCancelled:
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether the assignment has ended.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

func (status Status) String() string {
	return string(status)
}

// Assignment pairs a driver with a vehicle outside of any order.
type Assignment struct {
	ID        string
	DriverID  string
	VehicleID string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an ACTIVE assignment.
func New(driverID, vehicleID string) (*Assignment, error) {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}
	if vehicleID = strings.TrimSpace(vehicleID); vehicleID == "" {
		return nil, ErrVehicleRequired
	}
	now := time.Now().UTC()
	return &Assignment{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		VehicleID: vehicleID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Close ends an ACTIVE assignment. Closing again with the same status is a no-op.
func (a *Assignment) Close(next Status) (bool, error) {
	if !next.Terminal() {
		return false, ErrInvalidStatus
	}
	if a.Status == next {
		return false, nil
	}
	if a.Status != StatusActive {
		return false, ErrAlreadyClosed
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}
