package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/pkg/composables"
)

func inTx[T any](ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) (T, error)) (T, error) {
	var zero T

	pool, err := composables.UsePool(ctx)
	if errors.Is(err, composables.ErrNoPool) {
		// No pool wired: repositories that do not touch the database
		// (in-memory implementations) run without a transaction.
		return fn(composables.WithTenantID(ctx, tenantID))
	}
	if err != nil {
		return zero, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txCtx := composables.WithTx(ctx, tx)
	txCtx = composables.WithTenantID(txCtx, tenantID)

	out, err := fn(txCtx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, err
	}
	return out, nil
}
