package postgres

import (
	"context"
	"errors"

	"logistics/internal/ports"

	"github.com/jackc/pgx/v5"
)

// ErrNoTx is returned by repository methods called outside UnitOfWork.WithinTx.
var ErrNoTx = errors.New("no transaction in context: call this repository within UnitOfWork.WithinTx")

type ctxKey struct{}

var txKey = ctxKey{}

// TxBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type unitOfWork struct {
	db TxBeginner
}

// NewUnitOfWork constructs a unitOfWork bound to db.
func NewUnitOfWork(db TxBeginner) ports.UnitOfWork {
	return &unitOfWork{db: db}
}

// WithinTx executes fn within a database transaction.
//   - If a transaction already exists in ctx, fn joins it.
//   - If fn returns an error or panics, the transaction is rolled back.
//   - On success, the transaction is committed.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := uow.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	return tx.Commit(ctx)
}

// TxFromContext extracts the current pgx.Tx from ctx if present.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// MustTxFromContext returns the active pgx.Tx or ErrNoTx.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, nil
	}
	return nil, ErrNoTx
}

// notFound maps pgx.ErrNoRows onto ports.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}
