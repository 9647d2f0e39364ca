package territory

import (
	"context"

	"github.com/google/uuid"
)

type FindParams struct {
	Q      string
	Type   Type
	Status Status
	Limit  int
	Offset int
}

type Repository interface {
	GetPaginated(ctx context.Context, tenantID uuid.UUID, params *FindParams) ([]Territory, int64, error)
	// GetAll returns every territory of the tenant; the forest is small and
	// hierarchy queries are computed in memory over this list.
	GetAll(ctx context.Context, tenantID uuid.UUID) ([]Territory, error)
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (Territory, error)
	GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (Territory, error)
	Create(ctx context.Context, t Territory) (Territory, error)
	Update(ctx context.Context, t Territory) (Territory, error)
	Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error
}

type RuleRepository interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (Rule, error)
	GetByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]Rule, error)
	// GetAll returns every rule of the tenant ordered by ascending priority,
	// then creation time. The matcher filters on rule and territory activity.
	GetAll(ctx context.Context, tenantID uuid.UUID) ([]Rule, error)
	Create(ctx context.Context, r Rule) (Rule, error)
	Update(ctx context.Context, r Rule) (Rule, error)
	SetActive(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, active bool) (Rule, error)
	SetPriority(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, priority int) (Rule, error)
	Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error
}
