package postgres

import (
	"context"

	"logistics/internal/ports"
)

// SettlementRepo keeps one tombstone row per order that reached a terminal status.
type SettlementRepo struct{}

func NewSettlementRepo() ports.SettlementRepository {
	return &SettlementRepo{}
}

// Record stores the tombstone; the first terminal status wins.
func (repo *SettlementRepo) Record(ctx context.Context, orderID, status string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_settlements (order_id, status, settled_at)
		VALUES ($1, $2, now())
		ON CONFLICT (order_id) DO NOTHING
	`, orderID, status)
	return err
}

func (repo *SettlementRepo) IsSettled(ctx context.Context, orderID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	var settled bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM order_settlements WHERE order_id = $1)
	`, orderID).Scan(&settled)
	return settled, err
}
