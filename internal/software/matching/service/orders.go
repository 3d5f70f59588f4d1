package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"logistics/internal/domain/order"
	"logistics/internal/general/contracts"
	"logistics/internal/general/validation"
	"logistics/internal/ports"
)

// CreateOrder stores a pending order and announces it.
func (service *matchingService) CreateOrder(ctx context.Context, in ports.CreateOrderInput) (ports.OrderResult, error) {
	o, err := order.New(in.CustomerID, in.Pickup, in.Dropoff)
	if err != nil {
		return ports.OrderResult{}, err
	}
	ctx = service.logger.WithOrderID(ctx, o.ID)

	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := service.orders.Create(ctx, o); err != nil {
			return err
		}
		return service.enqueue(ctx, contracts.KindOrderCreated, contracts.OrderCreated{
			OrderID:    contracts.ID(o.ID),
			CustomerID: contracts.ID(o.CustomerID),
			Status:     o.Status.String(),
			Sequence:   o.Version,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "order_create_failed", "Failed to create order", err, map[string]any{"customer_id": in.CustomerID})
		return ports.OrderResult{}, err
	}

	service.logger.Info(ctx, "order_created", "Order created", map[string]any{"customer_id": o.CustomerID})
	service.relayAfterCommit(ctx)
	return orderResult(o), nil
}

func (service *matchingService) GetOrder(ctx context.Context, orderID string) (ports.OrderResult, error) {
	var out *order.Order
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = service.orders.Get(ctx, orderID)
		return err
	})
	if err != nil {
		return ports.OrderResult{}, err
	}
	return orderResult(out), nil
}

// MatchOrder pairs a pending order with a vehicle and a driver known to the
// user/driver service, then announces ORDER_MATCHED.
func (service *matchingService) MatchOrder(ctx context.Context, in ports.MatchOrderInput) (ports.OrderResult, error) {
	in.VehicleID = strings.TrimSpace(in.VehicleID)
	in.DriverID = strings.TrimSpace(in.DriverID)
	if in.VehicleID == "" {
		return ports.OrderResult{}, order.ErrVehicleRequired
	}
	if in.DriverID == "" {
		return ports.OrderResult{}, order.ErrDriverRequired
	}

	ctx = service.logger.WithOrderID(ctx, in.OrderID)
	details := map[string]any{"vehicle_id": in.VehicleID, "driver_id": in.DriverID}

	lookup := service.drivers.LookupDriver(ctx, in.DriverID)
	switch lookup.Outcome {
	case validation.Found:
	case validation.NotFound:
		service.logger.Warn(ctx, "order_match_rejected", "Driver does not exist", details)
		return ports.OrderResult{}, fmt.Errorf("%w: %s", ErrDriverNotFound, in.DriverID)
	default:
		service.logger.Error(ctx, "order_match_peer_unavailable", "Cannot verify driver", lookup.Err, details)
		return ports.OrderResult{}, fmt.Errorf("%w: %w", ErrPeerUnavailable, lookup.Err)
	}

	var out *order.Order
	var changed bool
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		o, err := service.orders.GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		out = o

		changed, err = o.Match(in.VehicleID, in.DriverID)
		if err != nil || !changed {
			return err
		}
		if err := service.orders.Update(ctx, o); err != nil {
			return err
		}
		return service.enqueue(ctx, contracts.KindOrderMatched, contracts.OrderMatched{
			OrderID:   contracts.ID(o.ID),
			VehicleID: contracts.ID(o.VehicleID),
			DriverID:  contracts.ID(o.DriverID),
			Sequence:  o.Version,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "order_match_failed", "Failed to match order", err, details)
		return ports.OrderResult{}, err
	}

	if changed {
		service.logger.Info(ctx, "order_matched", "Order matched", details)
		service.relayAfterCommit(ctx)
	}
	return orderResult(out), nil
}

// ChangeOrderStatus applies one lifecycle transition and announces it.
func (service *matchingService) ChangeOrderStatus(ctx context.Context, orderID, status string) (ports.OrderResult, error) {
	next, err := order.ParseStatus(status)
	if err != nil {
		return ports.OrderResult{}, err
	}
	ctx = service.logger.WithOrderID(ctx, orderID)

	var out *order.Order
	var old order.Status
	var changed bool
	err = service.uow.WithinTx(ctx, func(ctx context.Context) error {
		o, err := service.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		out, old = o, o.Status

		changed, err = o.TransitionTo(next)
		if err != nil || !changed {
			return err
		}
		if err := service.orders.Update(ctx, o); err != nil {
			return err
		}
		return service.enqueue(ctx, contracts.KindOrderStatusChanged, contracts.OrderStatusChanged{
			OrderID:   contracts.ID(o.ID),
			OldStatus: old.String(),
			NewStatus: o.Status.String(),
			VehicleID: contracts.ID(o.VehicleID),
			DriverID:  contracts.ID(o.DriverID),
			Sequence:  o.Version,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "order_status_change_failed", "Failed to change order status", err, map[string]any{
			"status": status,
		})
		return ports.OrderResult{}, err
	}

	if changed {
		service.logger.Info(ctx, "order_status_changed", "Order status changed", map[string]any{
			"old_status": old,
			"new_status": out.Status,
			"version":    out.Version,
		})
		service.relayAfterCommit(ctx)
	}
	return orderResult(out), nil
}

// enqueue stores the event in the outbox within the caller's transaction.
func (service *matchingService) enqueue(ctx context.Context, kind contracts.Kind, payload any) error {
	evt, err := contracts.New(kind, payload, contracts.ProducerMatching)
	if err != nil {
		return err
	}
	return service.outbox.Add(ctx, contracts.RoutingKey(kind), evt)
}

func orderResult(o *order.Order) ports.OrderResult {
	return ports.OrderResult{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status.String(),
		VehicleID:  o.VehicleID,
		DriverID:   o.DriverID,
		Pickup:     o.Pickup,
		Dropoff:    o.Dropoff,
		Version:    o.Version,
		UpdatedAt:  o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
