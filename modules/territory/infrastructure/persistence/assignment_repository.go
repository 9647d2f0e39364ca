package persistence

import (
	"context"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/assignment"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
	"github.com/iota-uz/territory/pkg/composables"
)

const assignmentColumns = `
	tenant_id,
	entity_type,
	entity_id,
	territory_id,
	assigned_by,
	assigned_at,
	method`

const historyColumns = `
	id,
	tenant_id,
	entity_type,
	entity_id,
	previous_territory_id,
	new_territory_id,
	actor_id,
	method,
	occurred_at`

type AssignmentRepository struct{}

func NewAssignmentRepository() assignment.Repository {
	return &AssignmentRepository{}
}

func (r *AssignmentRepository) GetCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	row := tx.QueryRow(ctx, `
SELECT `+assignmentColumns+`
FROM territory_assignments
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
`, pgUUID(tenantID), string(ref.Kind), pgUUID(ref.ID))
	out, err := scanAssignment(row)
	if err == pgx.ErrNoRows {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	if err != nil {
		return assignment.Assignment{}, gerrors.Wrap(err, "get current assignment")
	}
	return out, nil
}

// Lock takes a transaction-scoped advisory lock on the entity key. Unlike a
// FOR UPDATE on the projection row, it also serializes the first-ever
// assignment of an entity, when no row exists to lock.
func (r *AssignmentRepository) Lock(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
`, tenantID.String()+"/"+ref.String())
	if err != nil {
		return gerrors.Wrap(err, "lock assignment")
	}
	return nil
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO territory_assignments (
	tenant_id, entity_type, entity_id, territory_id, assigned_by, method
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tenant_id, entity_type, entity_id) DO UPDATE SET
	territory_id = EXCLUDED.territory_id,
	assigned_by = EXCLUDED.assigned_by,
	assigned_at = now(),
	method = EXCLUDED.method
RETURNING `+assignmentColumns+`
`,
		pgUUID(a.TenantID()),
		string(a.Entity().Kind),
		pgUUID(a.Entity().ID),
		pgUUID(a.TerritoryID()),
		a.AssignedBy(),
		string(a.Method()),
	)
	out, err := scanAssignment(row)
	if err != nil {
		return assignment.Assignment{}, err
	}
	return out, nil
}

func (r *AssignmentRepository) DeleteCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM territory_assignments
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
`, pgUUID(tenantID), string(ref.Kind), pgUUID(ref.ID))
	if err != nil {
		return gerrors.Wrap(err, "delete current assignment")
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (r *AssignmentRepository) AppendHistory(ctx context.Context, entry assignment.HistoryEntry) (assignment.HistoryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.HistoryEntry{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO territory_assignment_history (
	tenant_id, entity_type, entity_id, previous_territory_id, new_territory_id, actor_id, method
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+historyColumns+`
`,
		pgUUID(entry.TenantID),
		string(entry.Entity.Kind),
		pgUUID(entry.Entity.ID),
		pgUUIDPtr(entry.PreviousTerritoryID),
		pgUUIDPtr(entry.NewTerritoryID),
		entry.ActorID,
		string(entry.Method),
	)
	out, err := scanHistoryEntry(row)
	if err != nil {
		return assignment.HistoryEntry{}, err
	}
	return out, nil
}

func (r *AssignmentRepository) History(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) ([]assignment.HistoryEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+historyColumns+`
FROM territory_assignment_history
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
ORDER BY occurred_at DESC, id DESC
`, pgUUID(tenantID), string(ref.Kind), pgUUID(ref.ID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list assignment history")
	}
	defer rows.Close()

	out := make([]assignment.HistoryEntry, 0, 16)
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AssignmentRepository) ReplayCurrent(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+historyColumns+`
FROM territory_assignment_history
WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
ORDER BY occurred_at ASC, id ASC
`, pgUUID(tenantID), string(ref.Kind), pgUUID(ref.ID))
	if err != nil {
		return assignment.Assignment{}, gerrors.Wrap(err, "replay assignment history")
	}
	defer rows.Close()

	var current assignment.Assignment
	found := false
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return assignment.Assignment{}, err
		}
		if entry.NewTerritoryID == nil {
			current = assignment.Assignment{}
			found = false
			continue
		}
		current = assignment.Hydrate(
			entry.TenantID,
			entry.Entity,
			*entry.NewTerritoryID,
			entry.ActorID,
			entry.OccurredAt,
			entry.Method,
		)
		found = true
	}
	if rows.Err() != nil {
		return assignment.Assignment{}, rows.Err()
	}
	if !found {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return current, nil
}

func (r *AssignmentRepository) ListByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+assignmentColumns+`
FROM territory_assignments
WHERE tenant_id = $1 AND territory_id = $2
ORDER BY assigned_at ASC
`, pgUUID(tenantID), pgUUID(territoryID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list assignments by territory")
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func (r *AssignmentRepository) ListDangling(ctx context.Context, tenantID uuid.UUID) ([]assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT a.tenant_id, a.entity_type, a.entity_id, a.territory_id, a.assigned_by, a.assigned_at, a.method
FROM territory_assignments a
LEFT JOIN territories t ON t.tenant_id = a.tenant_id AND t.id = a.territory_id
WHERE a.tenant_id = $1 AND t.id IS NULL
ORDER BY a.assigned_at ASC
`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list dangling assignments")
	}
	defer rows.Close()

	return scanAssignments(rows)
}

func scanAssignments(rows pgx.Rows) ([]assignment.Assignment, error) {
	out := make([]assignment.Assignment, 0, 32)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanAssignment(row pgx.Row) (assignment.Assignment, error) {
	var (
		tenantID    pgtype.UUID
		entityType  string
		entityID    pgtype.UUID
		territoryID pgtype.UUID
		assignedBy  int64
		assignedAt  time.Time
		method      string
	)
	if err := row.Scan(&tenantID, &entityType, &entityID, &territoryID, &assignedBy, &assignedAt, &method); err != nil {
		return assignment.Assignment{}, err
	}

	return assignment.Hydrate(
		uuid.UUID(tenantID.Bytes),
		assignable.Ref{Kind: assignable.Kind(entityType), ID: uuid.UUID(entityID.Bytes)},
		uuid.UUID(territoryID.Bytes),
		assignedBy,
		assignedAt,
		assignment.Method(method),
	), nil
}

func scanHistoryEntry(row pgx.Row) (assignment.HistoryEntry, error) {
	var (
		id         pgtype.UUID
		tenantID   pgtype.UUID
		entityType string
		entityID   pgtype.UUID
		prevID     pgtype.UUID
		newID      pgtype.UUID
		actorID    int64
		method     string
		occurredAt time.Time
	)
	if err := row.Scan(&id, &tenantID, &entityType, &entityID, &prevID, &newID, &actorID, &method, &occurredAt); err != nil {
		return assignment.HistoryEntry{}, err
	}

	return assignment.HistoryEntry{
		ID:                  uuid.UUID(id.Bytes),
		TenantID:            uuid.UUID(tenantID.Bytes),
		Entity:              assignable.Ref{Kind: assignable.Kind(entityType), ID: uuid.UUID(entityID.Bytes)},
		PreviousTerritoryID: uuidPtr(prevID),
		NewTerritoryID:      uuidPtr(newID),
		ActorID:             actorID,
		Method:              assignment.Method(method),
		OccurredAt:          occurredAt,
	}, nil
}
