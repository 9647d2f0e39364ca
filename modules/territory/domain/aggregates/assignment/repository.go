package assignment

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/assignable"
)

// Repository is the assignment ledger: an append-only history log plus a
// current-state projection keyed by (kind, id). History rows are written in
// the same transaction as the projection so replay and projection can never
// disagree.
type Repository interface {
	GetCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (Assignment, error)
	// Lock serializes all mutations of one entity's assignment for the
	// duration of the surrounding transaction, whether or not a current
	// row exists yet.
	Lock(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) error
	Upsert(ctx context.Context, a Assignment) (Assignment, error)
	DeleteCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) error

	AppendHistory(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	// History returns the full log for one entity, newest first.
	History(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) ([]HistoryEntry, error)
	// ReplayCurrent folds the entity's history oldest-first and returns the
	// resulting binding. Used for consistency checks against GetCurrent.
	ReplayCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (Assignment, error)

	ListByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]Assignment, error)
	// ListDangling returns current assignments whose territory no longer
	// exists; these entities need reassignment.
	ListDangling(ctx context.Context, tenantID uuid.UUID) ([]Assignment, error)
}
