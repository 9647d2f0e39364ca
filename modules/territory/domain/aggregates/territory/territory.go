package territory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Type string

const (
	TypeGeographic   Type = "geographic"
	TypeAccountBased Type = "account_based"
)

func (t Type) Valid() bool {
	return t == TypeGeographic || t == TypeAccountBased
}

// Territory is a node in a rooted forest of ownership buckets. The parent
// relation lives on the child; acyclicity is enforced by the hierarchy
// service before any parent write.
type Territory struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	name        string
	code        string
	typ         Type
	status      Status
	description string
	parentID    *uuid.UUID
	ownerUserID *int64
	// Opaque geometry payload, passed through to GeoJSON export untouched.
	boundaries json.RawMessage
	sortOrder  int
	createdAt  time.Time
	updatedAt  time.Time
}

func New(tenantID uuid.UUID, name, code string, typ Type) Territory {
	return Territory{
		tenantID: tenantID,
		name:     strings.TrimSpace(name),
		code:     normalizeCode(code),
		typ:      typ,
		status:   StatusActive,
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	name string,
	code string,
	typ Type,
	status Status,
	description string,
	parentID *uuid.UUID,
	ownerUserID *int64,
	boundaries json.RawMessage,
	sortOrder int,
	createdAt time.Time,
	updatedAt time.Time,
) Territory {
	return Territory{
		id:          id,
		tenantID:    tenantID,
		name:        strings.TrimSpace(name),
		code:        normalizeCode(code),
		typ:         typ,
		status:      status,
		description: description,
		parentID:    parentID,
		ownerUserID: ownerUserID,
		boundaries:  boundaries,
		sortOrder:   sortOrder,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (t Territory) ID() uuid.UUID               { return t.id }
func (t Territory) TenantID() uuid.UUID         { return t.tenantID }
func (t Territory) Name() string                { return t.name }
func (t Territory) Code() string                { return t.code }
func (t Territory) Type() Type                  { return t.typ }
func (t Territory) Status() Status              { return t.status }
func (t Territory) Description() string         { return t.description }
func (t Territory) ParentID() *uuid.UUID        { return t.parentID }
func (t Territory) OwnerUserID() *int64         { return t.ownerUserID }
func (t Territory) Boundaries() json.RawMessage { return t.boundaries }
func (t Territory) SortOrder() int              { return t.sortOrder }
func (t Territory) CreatedAt() time.Time        { return t.createdAt }
func (t Territory) UpdatedAt() time.Time        { return t.updatedAt }
func (t Territory) IsActive() bool              { return t.status == StatusActive }
func (t Territory) IsZero() bool                { return t.id == uuid.Nil && t.code == "" }

func normalizeCode(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }
