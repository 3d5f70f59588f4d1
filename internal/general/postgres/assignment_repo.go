package postgres

import (
	"context"

	"logistics/internal/domain/assignment"
	"logistics/internal/ports"
)

// AssignmentRepo persists driver/vehicle pairings.
type AssignmentRepo struct{}

func NewAssignmentRepo() ports.AssignmentRepository {
	return &AssignmentRepo{}
}

// Create inserts a new assignment row.
func (repo *AssignmentRepo) Create(ctx context.Context, a *assignment.Assignment) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO assignments (id, driver_id, vehicle_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.DriverID, a.VehicleID, a.Status.String(), a.CreatedAt, a.UpdatedAt)
	return err
}

// GetForUpdate loads an assignment and locks its row.
func (repo *AssignmentRepo) GetForUpdate(ctx context.Context, id string) (*assignment.Assignment, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out assignment.Assignment
	var statusText string
	err = tx.QueryRow(ctx, `
		SELECT id, driver_id, vehicle_id, status, created_at, updated_at
		FROM assignments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&out.ID, &out.DriverID, &out.VehicleID, &statusText, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	if out.Status, err = assignment.ParseStatus(statusText); err != nil {
		return nil, err
	}
	return &out, nil
}

func (repo *AssignmentRepo) UpdateStatus(ctx context.Context, a *assignment.Assignment) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE assignments SET status = $2, updated_at = $3 WHERE id = $1
	`, a.ID, a.Status.String(), a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (repo *AssignmentRepo) HasActiveForDriver(ctx context.Context, driverID string) (bool, error) {
	return repo.hasActive(ctx, `driver_id`, driverID)
}

func (repo *AssignmentRepo) HasActiveForVehicle(ctx context.Context, vehicleID string) (bool, error) {
	return repo.hasActive(ctx, `vehicle_id`, vehicleID)
}

func (repo *AssignmentRepo) hasActive(ctx context.Context, column, id string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	// column is one of two constants above, never user input
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments WHERE `+column+` = $1 AND status = $2
		)
	`, id, assignment.StatusActive.String()).Scan(&exists)
	return exists, err
}
