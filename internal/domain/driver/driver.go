package driver

import (
	"errors"
	"time"
)

// Driver is the status-bearing part of a `drivers` row.
type Driver struct {
	ID        string
	UserID    string
	Status    Status
	OrderID   string // order that made the driver BUSY; empty when none
	UpdatedAt time.Time
}

var (
	ErrInvalidStatusSwitch = errors.New("invalid driver status transition")
	ErrBoundToOtherOrder   = errors.New("driver is busy with another order")
)

// ---- State transitions ----
// Each returns changed=false when the driver already is in the target state.

// MarkBusy moves AVAILABLE -> BUSY for orderID.
func (driver *Driver) MarkBusy(orderID string) (bool, error) {
	switch driver.Status {
	case StatusAvailable:
		driver.OrderID = orderID
		driver.setStatus(StatusBusy)
		return true, nil
	case StatusBusy:
		if driver.OrderID != "" && orderID != "" && driver.OrderID != orderID {
			return false, ErrBoundToOtherOrder
		}
		return false, nil
	default:
		return false, ErrInvalidStatusSwitch
	}
}

// Release moves BUSY -> AVAILABLE when the driver is bound to orderID or to no
// order. An empty orderID releases any binding.
func (driver *Driver) Release(orderID string) (bool, error) {
	switch driver.Status {
	case StatusBusy:
		if orderID != "" && driver.OrderID != "" && driver.OrderID != orderID {
			return false, ErrBoundToOtherOrder
		}
		driver.OrderID = ""
		driver.setStatus(StatusAvailable)
		return true, nil
	default:
		// AVAILABLE: already released; OFFLINE: nothing to release
		return false, nil
	}
}

// GoOffline is the explicit driver action; it is allowed from any state.
func (driver *Driver) GoOffline() bool {
	if driver.Status == StatusOffline {
		return false
	}
	driver.OrderID = ""
	driver.setStatus(StatusOffline)
	return true
}

// GoOnline moves OFFLINE -> AVAILABLE.
func (driver *Driver) GoOnline() (bool, error) {
	switch driver.Status {
	case StatusAvailable:
		return false, nil
	case StatusOffline:
		driver.setStatus(StatusAvailable)
		return true, nil
	default:
		return false, ErrInvalidStatusSwitch
	}
}

func (driver *Driver) setStatus(s Status) {
	driver.Status = s
	driver.UpdatedAt = time.Now().UTC()
}
