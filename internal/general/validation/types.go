package validation

import (
	"logistics/internal/domain/geo"
	"logistics/internal/general/contracts"
)

// UserData mirrors the user resource of the user/driver service.
type UserData struct {
	ID        contracts.ID `json:"id"`
	Email     string       `json:"email"`
	FullName  string       `json:"full_name,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Role      string       `json:"role,omitempty"`
	CreatedAt string       `json:"created_at,omitempty"`
	UpdatedAt string       `json:"updated_at,omitempty"`
}

// DriverData mirrors the driver resource of the user/driver service.
type DriverData struct {
	ID              contracts.ID `json:"id"`
	UserID          contracts.ID `json:"user_id"`
	LicenseNumber   string       `json:"license_number,omitempty"`
	IDCardNumber    string       `json:"id_card_number,omitempty"`
	CurrentLocation *geo.Point   `json:"current_location,omitempty"`
	Status          string       `json:"status,omitempty"`
	Rating          float64      `json:"rating,omitempty"`
	CreatedAt       string       `json:"created_at,omitempty"`
	UpdatedAt       string       `json:"updated_at,omitempty"`
	User            *UserData    `json:"user,omitempty"`
	Distance        *float64     `json:"distance,omitempty"` // km from the search point
}

// envelope is the response shape of every peer endpoint.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data"`
	Message string `json:"message,omitempty"`
}

// Outcome classifies a peer lookup.
type Outcome int

const (
	Found Outcome = iota + 1
	NotFound
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Lookup is the result of a peer read. Value is set only when Outcome is Found;
// Err explains NotFound and Unavailable.
type Lookup[T any] struct {
	Outcome Outcome
	Value   *T
	Err     error
}

func (l Lookup[T]) Found() bool { return l.Outcome == Found }
