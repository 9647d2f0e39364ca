package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/assignable"
)

type Method string

const (
	MethodManual           Method = "manual"
	MethodRuleBased        Method = "rule_based"
	MethodReassignment     Method = "reassignment"
	MethodBulkReassignment Method = "bulk_reassignment"
)

// Assignment is the current binding of one assignable entity to one
// territory. There is at most one per entity; reassignment supersedes it
// in place rather than creating a second row.
type Assignment struct {
	entity      assignable.Ref
	tenantID    uuid.UUID
	territoryID uuid.UUID
	assignedBy  int64
	assignedAt  time.Time
	method      Method
}

func New(tenantID uuid.UUID, entity assignable.Ref, territoryID uuid.UUID, assignedBy int64, method Method) Assignment {
	return Assignment{
		entity:      entity,
		tenantID:    tenantID,
		territoryID: territoryID,
		assignedBy:  assignedBy,
		method:      method,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	entity assignable.Ref,
	territoryID uuid.UUID,
	assignedBy int64,
	assignedAt time.Time,
	method Method,
) Assignment {
	return Assignment{
		entity:      entity,
		tenantID:    tenantID,
		territoryID: territoryID,
		assignedBy:  assignedBy,
		assignedAt:  assignedAt,
		method:      method,
	}
}

func (a Assignment) Entity() assignable.Ref { return a.entity }
func (a Assignment) TenantID() uuid.UUID    { return a.tenantID }
func (a Assignment) TerritoryID() uuid.UUID { return a.territoryID }
func (a Assignment) AssignedBy() int64      { return a.assignedBy }
func (a Assignment) AssignedAt() time.Time  { return a.assignedAt }
func (a Assignment) Method() Method         { return a.method }
func (a Assignment) IsZero() bool           { return a.territoryID == uuid.Nil && a.entity.ID == uuid.Nil }

// HistoryEntry is one append-only ledger row. Entries are never mutated or
// deleted; replaying them in order for an entity reproduces the current
// assignment, which is the formal definition of "current".
type HistoryEntry struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	Entity              assignable.Ref
	PreviousTerritoryID *uuid.UUID
	NewTerritoryID      *uuid.UUID
	ActorID             int64
	Method              Method
	OccurredAt          time.Time
}
