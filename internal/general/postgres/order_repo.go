package postgres

import (
	"context"
	"fmt"

	"logistics/internal/domain/order"
	"logistics/internal/ports"

	"github.com/jackc/pgx/v5"
)

// OrderRepo persists orders using pgx and plain SQL.
type OrderRepo struct{}

// NewOrderRepo constructs a new OrderRepo.
func NewOrderRepo() ports.OrderRepository {
	return &OrderRepo{}
}

const orderColumns = `
	id, customer_id, status,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	COALESCE(vehicle_id, ''), COALESCE(driver_id, ''),
	version, created_at, updated_at`

// Create inserts a new order row.
func (repo *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, status,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		o.ID, o.CustomerID, o.Status.String(),
		o.Pickup.Latitude, o.Pickup.Longitude, o.Dropoff.Latitude, o.Dropoff.Longitude,
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// Get returns one order by id.
func (repo *OrderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetForUpdate returns one order and locks its row.
func (repo *OrderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

// Update persists status, assignment and version.
func (repo *OrderRepo) Update(ctx context.Context, o *order.Order) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    vehicle_id = NULLIF($3, ''),
		    driver_id = NULLIF($4, ''),
		    version = $5,
		    updated_at = $6
		WHERE id = $1
	`, o.ID, o.Status.String(), o.VehicleID, o.DriverID, o.Version, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var out order.Order
	var statusText string
	err := row.Scan(
		&out.ID, &out.CustomerID, &statusText,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &out.Dropoff.Latitude, &out.Dropoff.Longitude,
		&out.VehicleID, &out.DriverID,
		&out.Version, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	status, err := order.ParseStatus(statusText)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", out.ID, err)
	}
	out.Status = status
	return &out, nil
}
