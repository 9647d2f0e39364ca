package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicTerritoryChangedV1  = "territory.changed.v1"
	TopicAssignmentChangedV1 = "territory.assignment.changed.v1"
	EventVersionV1           = 1
)

// TerritoryChangedV1 is published after a territory create/update/delete
// commits. ChangeType is one of "territory.created", "territory.updated",
// "territory.deleted".
type TerritoryChangedV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ChangeType   string    `json:"change_type"`
	TerritoryID  uuid.UUID `json:"territory_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AssignmentChangedV1 is published after any assignment mutation commits.
// Downstream caches keyed by territory (conversion statistics, forecast
// aggregates) invalidate on it; delivery is fire-and-forget.
type AssignmentChangedV1 struct {
	EventID             uuid.UUID  `json:"event_id"`
	EventVersion        int        `json:"event_version"`
	TenantID            uuid.UUID  `json:"tenant_id"`
	EntityKind          string     `json:"entity_kind"`
	EntityID            uuid.UUID  `json:"entity_id"`
	PreviousTerritoryID *uuid.UUID `json:"previous_territory_id,omitempty"`
	NewTerritoryID      *uuid.UUID `json:"new_territory_id,omitempty"`
	Method              string     `json:"method"`
	ActorID             int64      `json:"actor_id"`
	OccurredAt          time.Time  `json:"occurred_at"`
}
