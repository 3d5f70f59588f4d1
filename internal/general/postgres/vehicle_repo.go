package postgres

import (
	"context"
	"fmt"

	"logistics/internal/domain/vehicle"
	"logistics/internal/ports"
)

// VehicleRepo persists vehicle availability.
type VehicleRepo struct{}

func NewVehicleRepo() ports.VehicleRepository {
	return &VehicleRepo{}
}

// GetForUpdate loads a vehicle and locks its row until the transaction ends.
func (repo *VehicleRepo) GetForUpdate(ctx context.Context, id string) (*vehicle.Vehicle, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out vehicle.Vehicle
	var statusText string
	err = tx.QueryRow(ctx, `
		SELECT id, status, COALESCE(order_id, ''), updated_at
		FROM vehicles
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&out.ID, &statusText, &out.OrderID, &out.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	status, err := vehicle.ParseStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", id, err)
	}
	out.Status = status
	return &out, nil
}

func (repo *VehicleRepo) UpdateStatus(ctx context.Context, v *vehicle.Vehicle) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE vehicles
		SET status = $2, order_id = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, v.ID, v.Status.String(), v.OrderID, v.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (repo *VehicleRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
