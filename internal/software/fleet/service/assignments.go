package service

import (
	"context"
	"errors"
	"time"

	"logistics/internal/domain/assignment"
	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
	"logistics/internal/ports"
)

// bindingKey is what an assignment stores in the driver/vehicle order binding.
func bindingKey(a *assignment.Assignment) string {
	return "assignment:" + a.ID
}

// CreateAssignment pairs an AVAILABLE driver with an AVAILABLE vehicle and marks both busy.
func (service *fleetService) CreateAssignment(ctx context.Context, in ports.CreateAssignmentInput) (ports.AssignmentResult, error) {
	a, err := assignment.New(in.DriverID, in.VehicleID)
	if err != nil {
		return ports.AssignmentResult{}, err
	}

	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		if active, err := service.assignments.HasActiveForDriver(ctx, a.DriverID); err != nil {
			return err
		} else if active {
			return ErrActiveAssignment
		}
		if active, err := service.assignments.HasActiveForVehicle(ctx, a.VehicleID); err != nil {
			return err
		} else if active {
			return ErrActiveAssignment
		}

		d, err := service.drivers.GetForUpdate(ctx, a.DriverID)
		if err != nil {
			return err
		}
		if d.Status != driver.StatusAvailable {
			return ErrDriverUnavailable
		}
		v, err := service.vehicles.GetForUpdate(ctx, a.VehicleID)
		if err != nil {
			return err
		}
		if v.Status != vehicle.StatusAvailable {
			return ErrVehicleUnavailable
		}

		if _, err := d.MarkBusy(bindingKey(a)); err != nil {
			return err
		}
		if _, err := v.MarkInUse(bindingKey(a)); err != nil {
			return err
		}
		if err := service.assignments.Create(ctx, a); err != nil {
			return err
		}
		if err := service.drivers.UpdateStatus(ctx, d); err != nil {
			return err
		}
		return service.vehicles.UpdateStatus(ctx, v)
	})
	if err != nil {
		service.logger.Error(ctx, "assignment_create_failed", "Failed to create assignment", err, map[string]any{
			"driver_id":  in.DriverID,
			"vehicle_id": in.VehicleID,
		})
		return ports.AssignmentResult{}, err
	}

	service.logger.Info(ctx, "assignment_created", "Driver assigned to vehicle", map[string]any{
		"assignment_id": a.ID,
		"driver_id":     a.DriverID,
		"vehicle_id":    a.VehicleID,
	})
	return assignmentResult(a), nil
}

// UpdateAssignmentStatus completes or cancels an assignment and releases its driver and vehicle.
func (service *fleetService) UpdateAssignmentStatus(ctx context.Context, assignmentID, status string) (ports.AssignmentResult, error) {
	next, err := assignment.ParseStatus(status)
	if err != nil {
		return ports.AssignmentResult{}, err
	}

	var out *assignment.Assignment
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		a, err := service.assignments.GetForUpdate(ctx, assignmentID)
		if err != nil {
			return err
		}
		out = a

		changed, err := a.Close(next)
		if err != nil || !changed {
			return err
		}
		if err := service.assignments.UpdateStatus(ctx, a); err != nil {
			return err
		}
		return service.releaseAssignment(ctx, a)
	})
	if err != nil {
		service.logger.Error(ctx, "assignment_update_failed", "Failed to update assignment status", err, map[string]any{
			"assignment_id": assignmentID,
			"status":        status,
		})
		return ports.AssignmentResult{}, err
	}

	service.logger.Info(ctx, "assignment_closed", "Assignment closed", map[string]any{
		"assignment_id": out.ID,
		"status":        out.Status,
	})
	return assignmentResult(out), nil
}

func (service *fleetService) releaseAssignment(ctx context.Context, a *assignment.Assignment) error {
	key := bindingKey(a)
	details := map[string]any{"assignment_id": a.ID, "driver_id": a.DriverID, "vehicle_id": a.VehicleID}

	d, err := service.drivers.GetForUpdate(ctx, a.DriverID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		service.logger.Warn(ctx, "driver_not_found", "Assignment driver no longer exists", details)
	case err != nil:
		return err
	default:
		if changed, err := d.Release(key); err != nil {
			service.logger.Warn(ctx, "driver_release_skipped", "Driver is bound elsewhere; not released", details)
		} else if changed {
			if err := service.drivers.UpdateStatus(ctx, d); err != nil {
				return err
			}
		}
	}

	v, err := service.vehicles.GetForUpdate(ctx, a.VehicleID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		service.logger.Warn(ctx, "vehicle_not_found", "Assignment vehicle no longer exists", details)
	case err != nil:
		return err
	default:
		if changed, err := v.Release(key); err != nil {
			service.logger.Warn(ctx, "vehicle_release_skipped", "Vehicle is bound elsewhere; not released", details)
		} else if changed {
			return service.vehicles.UpdateStatus(ctx, v)
		}
	}
	return nil
}

func assignmentResult(a *assignment.Assignment) ports.AssignmentResult {
	return ports.AssignmentResult{
		AssignmentID: a.ID,
		DriverID:     a.DriverID,
		VehicleID:    a.VehicleID,
		Status:       a.Status.String(),
		UpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
