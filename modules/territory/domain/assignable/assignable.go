// Package assignable models the closed set of entity types a territory can
// be bound to. The engine never sees the entities themselves, only a
// uniform view: a stable id, the owning user and a flat field map used for
// rule matching.
package assignable

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/pkg/serrors"
)

// ErrEntityNotFound is returned by resolvers when the referenced record
// does not exist (or its type tag is unknown to the dispatch table).
var ErrEntityNotFound = serrors.NewError("ASSIGNMENT_ENTITY_NOT_FOUND", "assignable entity not found", "Assignable.Errors.NotFound")

type Kind string

const (
	KindLead         Kind = "lead"
	KindOrganization Kind = "organization"
	KindPerson       Kind = "person"
)

func Kinds() []Kind {
	return []Kind{KindLead, KindOrganization, KindPerson}
}

func KindFromString(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLead:
		return KindLead, nil
	case KindOrganization:
		return KindOrganization, nil
	case KindPerson:
		return KindPerson, nil
	}
	return "", fmt.Errorf("unknown assignable type %q", s)
}

// Ref is the polymorphic key of one assignable entity.
type Ref struct {
	Kind Kind
	ID   uuid.UUID
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// Entity is the engine's read view of an assignable record.
type Entity struct {
	Ref    Ref
	UserID *int64
	Fields map[string]any
}

// Field returns the raw attribute value and whether the field exists at
// all. A present field holding nil is distinct from an absent field only
// for documentation purposes; both count as null for rule evaluation.
func (e Entity) Field(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Resolver looks up assignable records and writes ownership transfers.
// Implementations dispatch on Ref.Kind; the set of kinds is closed.
type Resolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, ref Ref) (Entity, error)
	TransferOwnership(ctx context.Context, tenantID uuid.UUID, ref Ref, userID int64) error
}
