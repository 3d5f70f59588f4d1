package service

import (
	"context"

	"logistics/internal/domain/order"
	"logistics/internal/general/contracts"
	"logistics/internal/general/validation"
)

const defaultCandidateRadiusKM = 5.0

// Candidates lists drivers near the order pickup, nearest first.
func (service *matchingService) Candidates(ctx context.Context, orderID string, radiusKM float64) ([]validation.DriverData, error) {
	if radiusKM <= 0 {
		radiusKM = defaultCandidateRadiusKM
	}

	var o *order.Order
	err := service.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = service.orders.Get(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := service.drivers.FindNearbyDrivers(ctx, o.Pickup, radiusKM)
	service.logger.Debug(ctx, "order_candidates", "Nearby drivers for order", map[string]any{
		"order_id":  orderID,
		"radius_km": radiusKM,
		"count":     len(out),
	})
	return out, nil
}

// OnUserRegistered warms the user cache so later lookups skip the peer.
func (service *matchingService) OnUserRegistered(ctx context.Context, evt contracts.Event) error {
	var p contracts.UserRegistered
	if err := evt.DecodeData(&p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	if service.users != nil {
		service.users.PutUser(validation.UserData{ID: p.ID, Email: p.Email, Role: p.Role})
	}
	service.logger.Info(ctx, "user_cached", "Cached registered user", map[string]any{"user_id": p.ID.String()})
	return nil
}
