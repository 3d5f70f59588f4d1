package service

import (
	"context"
	"time"

	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
	"logistics/internal/ports"
)

// SetDriverOffline takes the driver off duty from any state.
func (service *fleetService) SetDriverOffline(ctx context.Context, driverID string) (ports.StatusResult, error) {
	return service.driverAction(ctx, "driver_offline", driverID, nil, func(d *driver.Driver) (bool, error) {
		return d.GoOffline(), nil
	})
}

// SetDriverOnline brings an OFFLINE driver back to AVAILABLE. A driver whose
// assignment is still ACTIVE stays off duty until the assignment is closed.
func (service *fleetService) SetDriverOnline(ctx context.Context, driverID string) (ports.StatusResult, error) {
	return service.driverAction(ctx, "driver_online", driverID,
		service.assignments.HasActiveForDriver, (*driver.Driver).GoOnline)
}

// SetVehicleMaintenance sends the vehicle to the workshop from any state.
func (service *fleetService) SetVehicleMaintenance(ctx context.Context, vehicleID string) (ports.StatusResult, error) {
	return service.vehicleAction(ctx, "vehicle_maintenance", vehicleID, nil, func(v *vehicle.Vehicle) (bool, error) {
		return v.SendToMaintenance(), nil
	})
}

// ReturnVehicleToService moves a vehicle out of MAINTENANCE. Refused while the
// vehicle still has an ACTIVE assignment.
func (service *fleetService) ReturnVehicleToService(ctx context.Context, vehicleID string) (ports.StatusResult, error) {
	return service.vehicleAction(ctx, "vehicle_available", vehicleID,
		service.assignments.HasActiveForVehicle, (*vehicle.Vehicle).ReturnToService)
}

// activeGuard reports whether id is still held by an ACTIVE assignment.
type activeGuard func(ctx context.Context, id string) (bool, error)

func checkGuard(ctx context.Context, guard activeGuard, id string) error {
	if guard == nil {
		return nil
	}
	active, err := guard(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return ErrActiveAssignment
	}
	return nil
}

func (service *fleetService) driverAction(
	ctx context.Context, action, driverID string, guard activeGuard, apply func(*driver.Driver) (bool, error),
) (ports.StatusResult, error) {
	var out ports.StatusResult
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		d, err := service.drivers.GetForUpdate(ctx, driverID)
		if err != nil {
			return err
		}
		if err := checkGuard(ctx, guard, driverID); err != nil {
			return err
		}
		changed, err := apply(d)
		if err != nil {
			return err
		}
		if changed {
			if err := service.drivers.UpdateStatus(ctx, d); err != nil {
				return err
			}
		}
		out = statusResult(d.ID, d.Status.String(), changed, d.UpdatedAt)
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, action+"_failed", "Driver status action failed", err, map[string]any{"driver_id": driverID})
		return ports.StatusResult{}, err
	}

	service.logger.Info(ctx, action, "Driver status action applied", map[string]any{
		"driver_id": driverID,
		"status":    out.Status,
		"changed":   out.Changed,
	})
	return out, nil
}

func (service *fleetService) vehicleAction(
	ctx context.Context, action, vehicleID string, guard activeGuard, apply func(*vehicle.Vehicle) (bool, error),
) (ports.StatusResult, error) {
	var out ports.StatusResult
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		v, err := service.vehicles.GetForUpdate(ctx, vehicleID)
		if err != nil {
			return err
		}
		if err := checkGuard(ctx, guard, vehicleID); err != nil {
			return err
		}
		changed, err := apply(v)
		if err != nil {
			return err
		}
		if changed {
			if err := service.vehicles.UpdateStatus(ctx, v); err != nil {
				return err
			}
		}
		out = statusResult(v.ID, v.Status.String(), changed, v.UpdatedAt)
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, action+"_failed", "Vehicle status action failed", err, map[string]any{"vehicle_id": vehicleID})
		return ports.StatusResult{}, err
	}

	service.logger.Info(ctx, action, "Vehicle status action applied", map[string]any{
		"vehicle_id": vehicleID,
		"status":     out.Status,
		"changed":    out.Changed,
	})
	return out, nil
}

func statusResult(id, status string, changed bool, at time.Time) ports.StatusResult {
	out := ports.StatusResult{ID: id, Status: status, Changed: changed}
	if !at.IsZero() {
		out.UpdatedAt = at.UTC().Format(time.RFC3339)
	}
	return out
}
