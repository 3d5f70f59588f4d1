package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMissingField = errors.New("missing required field")

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

// ID is an entity identifier that producers may send as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// OrderCreated announces a new pending order.
type OrderCreated struct {
	OrderID    ID     `json:"orderId"`
	CustomerID ID     `json:"customerId"`
	Status     string `json:"status"`
	Sequence   int64  `json:"sequence,omitempty"`
}

func (p OrderCreated) Validate() error {
	if p.OrderID.Empty() {
		return missing("orderId")
	}
	return nil
}

func (p OrderCreated) DedupParts() (string, int64) {
	return string(p.OrderID), p.Sequence
}

// OrderMatched announces that an order was paired with a vehicle (and driver).
type OrderMatched struct {
	OrderID   ID    `json:"orderId,omitempty"`
	VehicleID ID    `json:"vehicleId"`
	DriverID  ID    `json:"driverId,omitempty"`
	Sequence  int64 `json:"sequence,omitempty"`
}

func (p OrderMatched) Validate() error {
	if p.VehicleID.Empty() {
		return missing("vehicleId")
	}
	return nil
}

func (p OrderMatched) DedupParts() (string, int64) {
	return string(p.OrderID), p.Sequence
}

// OrderStatusChanged announces an order transition.
type OrderStatusChanged struct {
	OrderID   ID     `json:"orderId"`
	OldStatus string `json:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus"`
	VehicleID ID     `json:"vehicleId,omitempty"`
	DriverID  ID     `json:"driverId,omitempty"`
	Sequence  int64  `json:"sequence,omitempty"`
}

func (p OrderStatusChanged) Validate() error {
	if p.OrderID.Empty() {
		return missing("orderId")
	}
	if strings.TrimSpace(p.NewStatus) == "" {
		return missing("newStatus")
	}
	return nil
}

func (p OrderStatusChanged) DedupParts() (string, int64) {
	return string(p.OrderID), p.Sequence
}

// UserRegistered is emitted by the auth service.
type UserRegistered struct {
	ID    ID     `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (p UserRegistered) Validate() error {
	if p.ID.Empty() {
		return missing("id")
	}
	if strings.TrimSpace(p.Email) == "" {
		return missing("email")
	}
	return nil
}

func (p UserRegistered) DedupParts() (string, int64) {
	return string(p.ID), 0
}

// IsTerminalOrderStatus reports whether an order status ends the order's life.
// "completed" is accepted alongside "delivered" for older producers.
func IsTerminalOrderStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "delivered", "cancelled":
		return true
	}
	return false
}
