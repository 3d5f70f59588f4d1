package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"logistics/internal/domain/geo"
	"logistics/internal/domain/order"
	"logistics/internal/general/contracts"
	"logistics/internal/general/validation"
	"logistics/internal/ports"
)

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type orderRepo struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func newOrderRepo() *orderRepo { return &orderRepo{orders: map[string]order.Order{}} }

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r *orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &o, nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepo) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

type outboxRepo struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*ports.OutboxMessage
	sentRows map[int64]bool
}

func newOutboxRepo() *outboxRepo {
	return &outboxRepo{rows: map[int64]*ports.OutboxMessage{}, sentRows: map[int64]bool{}}
}

func (r *outboxRepo) Add(_ context.Context, routingKey string, evt contracts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.rows[r.nextID] = &ports.OutboxMessage{ID: r.nextID, RoutingKey: routingKey, Event: evt}
	return nil
}

func (r *outboxRepo) ClaimPending(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.OutboxMessage
	for id, msg := range r.rows {
		if !r.sentRows[id] {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepo) MarkPublished(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentRows[id] = true
	return nil
}

func (r *outboxRepo) RecordFailure(_ context.Context, id int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].Attempts++
	return nil
}

func (r *outboxRepo) pending() int {
	n, _ := r.ClaimPending(context.Background(), 1<<30)
	return len(n)
}

type published struct {
	routingKey string
	evt        contracts.Event
}

type fakePublisher struct {
	mu   sync.Mutex
	down bool
	sent []published
}

var errBrokerDown = errors.New("broker down")

func (p *fakePublisher) Publish(_ context.Context, routingKey string, evt contracts.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errBrokerDown
	}
	p.sent = append(p.sent, published{routingKey, evt})
	return nil
}

func (p *fakePublisher) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *fakePublisher) kinds() []contracts.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []contracts.Kind
	for _, s := range p.sent {
		out = append(out, s.evt.Kind)
	}
	return out
}

type fakeDirectory struct {
	outcome validation.Outcome
	nearby  []validation.DriverData
	lastLoc geo.Point
}

func (d *fakeDirectory) LookupDriver(_ context.Context, id string) validation.Lookup[validation.DriverData] {
	switch d.outcome {
	case validation.Found:
		return validation.Lookup[validation.DriverData]{Outcome: validation.Found, Value: &validation.DriverData{ID: contracts.ID(id)}}
	case validation.NotFound:
		return validation.Lookup[validation.DriverData]{Outcome: validation.NotFound, Err: validation.ErrNotFound}
	default:
		return validation.Lookup[validation.DriverData]{Outcome: validation.Unavailable, Err: validation.ErrUnavailable}
	}
}

func (d *fakeDirectory) FindNearbyDrivers(_ context.Context, loc geo.Point, _ float64) []validation.DriverData {
	d.lastLoc = loc
	return d.nearby
}
