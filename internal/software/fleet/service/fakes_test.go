package service

import (
	"context"
	"sync"

	"logistics/internal/domain/assignment"
	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
	"logistics/internal/ports"
)

type passthroughUoW struct{}

func (passthroughUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memStore struct {
	mu          sync.Mutex
	drivers     map[string]driver.Driver
	vehicles    map[string]vehicle.Vehicle
	assignments map[string]assignment.Assignment
	settled     map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		drivers:     map[string]driver.Driver{},
		vehicles:    map[string]vehicle.Vehicle{},
		assignments: map[string]assignment.Assignment{},
		settled:     map[string]string{},
	}
}

type driverRepo struct{ s *memStore }

func (r driverRepo) GetForUpdate(_ context.Context, id string) (*driver.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.drivers[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &d, nil
}

func (r driverRepo) UpdateStatus(_ context.Context, d *driver.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drivers[d.ID]; !ok {
		return ports.ErrNotFound
	}
	r.s.drivers[d.ID] = *d
	return nil
}

func (r driverRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.drivers, id)
	return nil
}

type vehicleRepo struct{ s *memStore }

func (r vehicleRepo) GetForUpdate(_ context.Context, id string) (*vehicle.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &v, nil
}

func (r vehicleRepo) UpdateStatus(_ context.Context, v *vehicle.Vehicle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.vehicles[v.ID]; !ok {
		return ports.ErrNotFound
	}
	r.s.vehicles[v.ID] = *v
	return nil
}

func (r vehicleRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.vehicles, id)
	return nil
}

type assignmentRepo struct{ s *memStore }

func (r assignmentRepo) Create(_ context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.assignments[a.ID] = *a
	return nil
}

func (r assignmentRepo) GetForUpdate(_ context.Context, id string) (*assignment.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &a, nil
}

func (r assignmentRepo) UpdateStatus(_ context.Context, a *assignment.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.assignments[a.ID] = *a
	return nil
}

func (r assignmentRepo) HasActiveForDriver(_ context.Context, driverID string) (bool, error) {
	return r.hasActive(func(a assignment.Assignment) bool { return a.DriverID == driverID }), nil
}

func (r assignmentRepo) HasActiveForVehicle(_ context.Context, vehicleID string) (bool, error) {
	return r.hasActive(func(a assignment.Assignment) bool { return a.VehicleID == vehicleID }), nil
}

func (r assignmentRepo) hasActive(match func(assignment.Assignment) bool) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assignments {
		if a.Status == assignment.StatusActive && match(a) {
			return true
		}
	}
	return false
}

type settlementRepo struct{ s *memStore }

func (r settlementRepo) Record(_ context.Context, orderID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.settled[orderID]; !ok {
		r.s.settled[orderID] = status
	}
	return nil
}

func (r settlementRepo) IsSettled(_ context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.settled[orderID]
	return ok, nil
}
