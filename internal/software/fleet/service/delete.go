package service

import (
	"context"

	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
)

// DeleteDriver removes a driver that is neither assigned nor serving an order.
func (service *fleetService) DeleteDriver(ctx context.Context, driverID string) error {
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		d, err := service.drivers.GetForUpdate(ctx, driverID)
		if err != nil {
			return err
		}
		active, err := service.assignments.HasActiveForDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if active || d.Status == driver.StatusBusy {
			return ErrActiveAssignment
		}
		return service.drivers.Delete(ctx, driverID)
	})
	if err != nil {
		service.logger.Error(ctx, "driver_delete_failed", "Failed to delete driver", err, map[string]any{"driver_id": driverID})
		return err
	}

	service.logger.Info(ctx, "driver_deleted", "Driver deleted", map[string]any{"driver_id": driverID})
	return nil
}

// DeleteVehicle removes a vehicle that is neither assigned nor in use.
func (service *fleetService) DeleteVehicle(ctx context.Context, vehicleID string) error {
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		v, err := service.vehicles.GetForUpdate(ctx, vehicleID)
		if err != nil {
			return err
		}
		active, err := service.assignments.HasActiveForVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if active || v.Status == vehicle.StatusInUse {
			return ErrActiveAssignment
		}
		return service.vehicles.Delete(ctx, vehicleID)
	})
	if err != nil {
		service.logger.Error(ctx, "vehicle_delete_failed", "Failed to delete vehicle", err, map[string]any{"vehicle_id": vehicleID})
		return err
	}

	service.logger.Info(ctx, "vehicle_deleted", "Vehicle deleted", map[string]any{"vehicle_id": vehicleID})
	return nil
}
