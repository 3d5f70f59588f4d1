package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names an integration event; it travels in the "event" field.
type Kind string

const (
	KindUserRegistered        Kind = "USER_REGISTERED"
	KindUserLoggedIn          Kind = "USER_LOGGED_IN"
	KindOrderCreated          Kind = "ORDER_CREATED"
	KindOrderMatched          Kind = "ORDER_MATCHED"
	KindOrderStatusChanged    Kind = "ORDER_STATUS_CHANGED"
	KindVehicleStatusChanged  Kind = "VEHICLE_STATUS_CHANGED"
	KindDriverLocationUpdated Kind = "DRIVER_LOCATION_UPDATED"
)

var knownKinds = map[Kind]string{
	KindUserRegistered:        RouteUserPrefix + "registered",
	KindUserLoggedIn:          RouteUserPrefix + "logged_in",
	KindOrderCreated:          RouteOrderPrefix + "created",
	KindOrderMatched:          RouteOrderPrefix + "matched",
	KindOrderStatusChanged:    RouteOrderPrefix + "status_changed",
	KindVehicleStatusChanged:  "vehicle.status_changed",
	KindDriverLocationUpdated: "driver.location_updated",
}

// Known reports whether k is part of the vocabulary.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// RoutingKey maps a kind onto the topic exchange. Unknown kinds get a lowercase key
// under "misc." so they still route nowhere in particular.
func RoutingKey(k Kind) string {
	if rk, ok := knownKinds[k]; ok {
		return rk
	}
	return "misc." + strings.ToLower(string(k))
}

var (
	ErrMalformed   = errors.New("malformed event")
	ErrMissingKind = errors.New("event kind is missing")
)

// Event is the wire envelope every integration message uses.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Kind      Kind            `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	EmittedAt time.Time       `json:"emittedAt"`
	DedupKey  string          `json:"dedupKey,omitempty"`
	Producer  string          `json:"producer,omitempty"`
}

// Keyed payloads name the entity and causal version they describe.
type Keyed interface {
	DedupParts() (entityID string, version int64)
}

// New wraps payload into a fresh envelope.
func New(kind Kind, payload any, producer string) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}

	evt := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Data:      data,
		EmittedAt: time.Now().UTC(),
		Producer:  producer,
	}

	if k, ok := payload.(Keyed); ok {
		if id, version := k.DedupParts(); id != "" {
			evt.DedupKey = DedupKey(kind, id, version)
		}
	}
	if evt.DedupKey == "" {
		evt.DedupKey = DedupKey(kind, evt.ID, 0)
	}
	return evt, nil
}

// Decode parses a message body into an envelope. The payload stays raw.
func Decode(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	evt.Kind = Kind(strings.TrimSpace(string(evt.Kind)))
	if evt.Kind == "" {
		return Event{}, ErrMissingKind
	}
	return evt, nil
}

// DecodeData unmarshals the payload into v. An absent payload decodes as {}.
func (evt Event) DecodeData(v any) error {
	data := evt.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformed, evt.Kind, err)
	}
	return nil
}

// Key is the deduplication key of a received event: the producer's key, else one
// derived from the envelope id, else from the order and sequence in the payload.
// Empty when the event carries none of these; such events are always applied.
func (evt Event) Key() string {
	switch {
	case evt.DedupKey != "":
		return evt.DedupKey
	case evt.ID != "":
		return DedupKey(evt.Kind, evt.ID, 0)
	}

	var ref struct {
		OrderID  ID    `json:"orderId"`
		Sequence int64 `json:"sequence"`
	}
	if err := json.Unmarshal(evt.Data, &ref); err != nil || ref.OrderID.Empty() || ref.Sequence <= 0 {
		return ""
	}
	return DedupKey(evt.Kind, ref.OrderID.String(), ref.Sequence)
}
