package postgres

import (
	"context"
	"fmt"

	"logistics/internal/domain/driver"
	"logistics/internal/ports"
)

// DriverRepo persists driver availability using pgx and plain SQL.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

// GetForUpdate loads a driver and locks its row until the transaction ends.
func (repo *DriverRepo) GetForUpdate(ctx context.Context, id string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out driver.Driver
	var statusText string
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, status, COALESCE(order_id, ''), updated_at
		FROM drivers
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&out.ID, &out.UserID, &statusText, &out.OrderID, &out.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	status, err := driver.ParseStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("driver %s: %w", id, err)
	}
	out.Status = status
	return &out, nil
}

// UpdateStatus writes status, bound order and updated_at.
func (repo *DriverRepo) UpdateStatus(ctx context.Context, d *driver.Driver) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET status = $2, order_id = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, d.ID, d.Status.String(), d.OrderID, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Delete removes a driver row.
func (repo *DriverRepo) Delete(ctx context.Context, id string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM drivers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
