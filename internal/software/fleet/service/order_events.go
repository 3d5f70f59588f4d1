package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"logistics/internal/general/contracts"
	"logistics/internal/general/dispatch"
	"logistics/internal/ports"
)

// OnOrderMatched reserves the matched vehicle and driver for the order.
// Conflicting state is logged and left alone so the message is not retried forever.
func (service *fleetService) OnOrderMatched(ctx context.Context, evt contracts.Event) error {
	var p contracts.OrderMatched
	if err := evt.DecodeData(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	orderID, vehicleID, driverID := p.OrderID.String(), p.VehicleID.String(), p.DriverID.String()
	ctx = service.logger.WithOrderID(ctx, orderID)
	details := map[string]any{"vehicle_id": vehicleID, "driver_id": driverID, "sequence": p.Sequence}

	return service.uow.WithinTx(ctx, func(ctx context.Context) error {
		if orderID != "" {
			settled, err := service.settlements.IsSettled(ctx, orderID)
			if err != nil {
				return err
			}
			if settled {
				service.logger.Info(ctx, "order_match_stale", "Order already settled; ignoring late match", details)
				return nil
			}
		}

		v, err := service.vehicles.GetForUpdate(ctx, vehicleID)
		if errors.Is(err, ports.ErrNotFound) {
			return dispatch.Permanent(fmt.Errorf("vehicle %s: %w", vehicleID, err))
		}
		if err != nil {
			return err
		}

		changed, err := v.MarkInUse(orderID)
		switch {
		case err != nil:
			service.logger.Warn(ctx, "vehicle_reserve_conflict", "Vehicle cannot be reserved; leaving it as is",
				withState(details, "vehicle_status", v.Status, err))
		case changed:
			if err := service.vehicles.UpdateStatus(ctx, v); err != nil {
				return err
			}
			service.logger.Info(ctx, "vehicle_reserved", "Vehicle marked IN_USE", details)
		default:
			service.logger.Debug(ctx, "vehicle_reserve_noop", "Vehicle already serves this order", details)
		}

		if driverID == "" {
			return nil
		}

		d, err := service.drivers.GetForUpdate(ctx, driverID)
		if errors.Is(err, ports.ErrNotFound) {
			service.logger.Warn(ctx, "driver_not_found", "Matched driver is unknown to the fleet", details)
			return nil
		}
		if err != nil {
			return err
		}

		changed, err = d.MarkBusy(orderID)
		switch {
		case err != nil:
			service.logger.Warn(ctx, "driver_reserve_conflict", "Driver cannot be marked BUSY; leaving it as is",
				withState(details, "driver_status", d.Status, err))
		case changed:
			if err := service.drivers.UpdateStatus(ctx, d); err != nil {
				return err
			}
			service.logger.Info(ctx, "driver_reserved", "Driver marked BUSY", details)
		}
		return nil
	})
}

// OnOrderStatusChanged releases the order's vehicle and driver once the order settles.
func (service *fleetService) OnOrderStatusChanged(ctx context.Context, evt contracts.Event) error {
	var p contracts.OrderStatusChanged
	if err := evt.DecodeData(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	orderID, vehicleID, driverID := p.OrderID.String(), p.VehicleID.String(), p.DriverID.String()
	ctx = service.logger.WithOrderID(ctx, orderID)
	details := map[string]any{
		"old_status": p.OldStatus,
		"new_status": p.NewStatus,
		"vehicle_id": vehicleID,
		"driver_id":  driverID,
		"sequence":   p.Sequence,
	}

	if !contracts.IsTerminalOrderStatus(p.NewStatus) {
		service.logger.Debug(ctx, "order_status_ignored", "Non-terminal order status does not affect the fleet", details)
		return nil
	}

	return service.uow.WithinTx(ctx, func(ctx context.Context) error {
		// the tombstone is kept even without a vehicle so a late ORDER_MATCHED is ignored
		if err := service.settlements.Record(ctx, orderID, p.NewStatus); err != nil {
			return err
		}
		if vehicleID == "" {
			return nil
		}

		v, err := service.vehicles.GetForUpdate(ctx, vehicleID)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			service.logger.Warn(ctx, "vehicle_not_found", "Settled order references an unknown vehicle", details)
		case err != nil:
			return err
		default:
			changed, err := v.Release(orderID)
			switch {
			case err != nil:
				service.logger.Warn(ctx, "vehicle_release_skipped", "Vehicle serves another order; not released",
					withState(details, "vehicle_order_id", v.OrderID, err))
			case changed:
				if err := service.vehicles.UpdateStatus(ctx, v); err != nil {
					return err
				}
				service.logger.Info(ctx, "vehicle_released", "Vehicle back to AVAILABLE", details)
			}
		}

		if driverID == "" {
			return nil
		}

		d, err := service.drivers.GetForUpdate(ctx, driverID)
		if errors.Is(err, ports.ErrNotFound) {
			service.logger.Warn(ctx, "driver_not_found", "Settled order references an unknown driver", details)
			return nil
		}
		if err != nil {
			return err
		}

		changed, err := d.Release(orderID)
		switch {
		case err != nil:
			service.logger.Warn(ctx, "driver_release_skipped", "Driver serves another order; not released",
				withState(details, "driver_order_id", d.OrderID, err))
		case changed:
			if err := service.drivers.UpdateStatus(ctx, d); err != nil {
				return err
			}
			service.logger.Info(ctx, "driver_released", "Driver back to AVAILABLE", details)
		}
		return nil
	})
}

// OnUserRegistered only records that the user exists upstream; driver rows are
// created through the onboarding flow.
func (service *fleetService) OnUserRegistered(ctx context.Context, evt contracts.Event) error {
	var p contracts.UserRegistered
	if err := evt.DecodeData(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	service.logger.Info(ctx, "user_registered", "User registered upstream", map[string]any{
		"user_id": p.ID.String(),
		"role":    p.Role,
	})
	return nil
}

func withState(details map[string]any, key string, value any, err error) map[string]any {
	out := make(map[string]any, len(details)+2)
	maps.Copy(out, details)
	out[key] = value
	out["reason"] = err.Error()
	return out
}
