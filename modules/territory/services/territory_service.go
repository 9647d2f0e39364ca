package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/domain/events"
	"github.com/iota-uz/territory/pkg/eventbus"
)

type TerritoryService struct {
	repo      territory.Repository
	publisher eventbus.EventBus
}

func NewTerritoryService(repo territory.Repository, publisher eventbus.EventBus) *TerritoryService {
	return &TerritoryService{repo: repo, publisher: publisher}
}

type CreateTerritoryInput struct {
	Name        string
	Code        string
	Type        territory.Type
	Status      territory.Status
	Description string
	ParentID    *uuid.UUID
	OwnerUserID *int64
	Boundaries  json.RawMessage
	SortOrder   int
}

func (s *TerritoryService) Create(ctx context.Context, tenantID uuid.UUID, in CreateTerritoryInput) (territory.Territory, error) {
	if tenantID == uuid.Nil {
		return territory.Territory{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if in.Name == "" || in.Code == "" {
		return territory.Territory{}, newServiceError(http.StatusBadRequest, "TERRITORY_VALIDATION", "name and code are required", nil)
	}
	if !in.Type.Valid() {
		return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "type must be geographic or account_based", nil)
	}
	if in.Status == "" {
		in.Status = territory.StatusActive
	}

	created, err := inTx(ctx, tenantID, func(txCtx context.Context) (territory.Territory, error) {
		if in.ParentID != nil {
			if _, err := s.repo.GetByID(txCtx, tenantID, *in.ParentID); err != nil {
				return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_INVALID_PARENT", "parent territory not found", err)
			}
		}
		entity := territory.Hydrate(
			uuid.Nil,
			tenantID,
			in.Name,
			in.Code,
			in.Type,
			in.Status,
			in.Description,
			in.ParentID,
			in.OwnerUserID,
			in.Boundaries,
			in.SortOrder,
			time.Time{},
			time.Time{},
		)
		out, err := s.repo.Create(txCtx, entity)
		if err != nil {
			return territory.Territory{}, mapTerritoryError(err)
		}
		return out, nil
	})
	if err != nil {
		return territory.Territory{}, err
	}

	s.publish("territory.created", created)
	return created, nil
}

type UpdateTerritoryInput struct {
	ID          uuid.UUID
	Name        *string
	Code        *string
	Type        *territory.Type
	Status      *territory.Status
	Description *string
	// Double pointer: nil leaves the parent untouched, *nil detaches it.
	ParentID    **uuid.UUID
	OwnerUserID **int64
	Boundaries  json.RawMessage
	SortOrder   *int
}

func (s *TerritoryService) Update(ctx context.Context, tenantID uuid.UUID, in UpdateTerritoryInput) (territory.Territory, error) {
	if tenantID == uuid.Nil {
		return territory.Territory{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	if in.ID == uuid.Nil {
		return territory.Territory{}, newServiceError(http.StatusBadRequest, "TERRITORY_VALIDATION", "id is required", nil)
	}

	updated, err := inTx(ctx, tenantID, func(txCtx context.Context) (territory.Territory, error) {
		current, err := s.repo.GetByID(txCtx, tenantID, in.ID)
		if err != nil {
			return territory.Territory{}, mapTerritoryError(err)
		}

		name := current.Name()
		if in.Name != nil {
			name = strings.TrimSpace(*in.Name)
			if name == "" {
				return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "name must not be empty", nil)
			}
		}
		code := current.Code()
		if in.Code != nil {
			code = strings.TrimSpace(*in.Code)
			if code == "" {
				return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "code must not be empty", nil)
			}
		}
		typ := current.Type()
		if in.Type != nil {
			typ = *in.Type
			if !typ.Valid() {
				return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "type must be geographic or account_based", nil)
			}
		}
		status := current.Status()
		if in.Status != nil {
			status = *in.Status
		}
		description := current.Description()
		if in.Description != nil {
			description = *in.Description
		}
		ownerUserID := current.OwnerUserID()
		if in.OwnerUserID != nil {
			ownerUserID = *in.OwnerUserID
		}
		boundaries := current.Boundaries()
		if in.Boundaries != nil {
			boundaries = in.Boundaries
		}
		sortOrder := current.SortOrder()
		if in.SortOrder != nil {
			sortOrder = *in.SortOrder
		}

		parentID := current.ParentID()
		if in.ParentID != nil {
			parentID = *in.ParentID
			if parentID != nil {
				// Cycle validation re-reads the tree inside this transaction
				// so a concurrent reparenting cannot slip between check and
				// commit.
				all, err := s.repo.GetAll(txCtx, tenantID)
				if err != nil {
					return territory.Territory{}, err
				}
				if !containsTerritory(all, *parentID) {
					return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_INVALID_PARENT", "parent territory not found", nil)
				}
				if wouldCreateCycle(all, in.ID, *parentID) {
					return territory.Territory{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_CYCLE", "parent change would create a cycle", nil)
				}
			}
		}

		entity := territory.Hydrate(
			current.ID(),
			tenantID,
			name,
			code,
			typ,
			status,
			description,
			parentID,
			ownerUserID,
			boundaries,
			sortOrder,
			current.CreatedAt(),
			time.Time{},
		)
		out, err := s.repo.Update(txCtx, entity)
		if err != nil {
			return territory.Territory{}, mapTerritoryError(err)
		}
		return out, nil
	})
	if err != nil {
		return territory.Territory{}, err
	}

	s.publish("territory.updated", updated)
	return updated, nil
}

// Delete removes the territory even when live assignments still point at
// it; those assignments surface in the needs-reassignment report.
func (s *TerritoryService) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	if tenantID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}

	deleted, err := inTx(ctx, tenantID, func(txCtx context.Context) (territory.Territory, error) {
		current, err := s.repo.GetByID(txCtx, tenantID, id)
		if err != nil {
			return territory.Territory{}, mapTerritoryError(err)
		}
		if err := s.repo.Delete(txCtx, tenantID, id); err != nil {
			return territory.Territory{}, mapTerritoryError(err)
		}
		return current, nil
	})
	if err != nil {
		return err
	}

	s.publish("territory.deleted", deleted)
	return nil
}

func (s *TerritoryService) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (territory.Territory, error) {
	out, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return territory.Territory{}, mapTerritoryError(err)
	}
	return out, nil
}

func (s *TerritoryService) GetPaginated(ctx context.Context, tenantID uuid.UUID, params *territory.FindParams) ([]territory.Territory, int64, error) {
	if params != nil {
		params.Q = strings.TrimSpace(params.Q)
	}
	return s.repo.GetPaginated(ctx, tenantID, params)
}

func (s *TerritoryService) GetAll(ctx context.Context, tenantID uuid.UUID) ([]territory.Territory, error) {
	return s.repo.GetAll(ctx, tenantID)
}

type GeoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type GeoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
}

// ExportGeoJSON renders matching territories as a FeatureCollection. The
// stored boundaries payload is passed through as the feature geometry
// untouched; territories without boundaries get a null geometry.
func (s *TerritoryService) ExportGeoJSON(ctx context.Context, tenantID uuid.UUID, params *territory.FindParams) (GeoJSONFeatureCollection, error) {
	if params == nil {
		params = &territory.FindParams{}
	}
	territories, _, err := s.repo.GetPaginated(ctx, tenantID, params)
	if err != nil {
		return GeoJSONFeatureCollection{}, err
	}

	features := make([]GeoJSONFeature, 0, len(territories))
	for _, t := range territories {
		geometry := t.Boundaries()
		if len(geometry) == 0 {
			geometry = json.RawMessage("null")
		}
		props := map[string]any{
			"id":     t.ID(),
			"name":   t.Name(),
			"code":   t.Code(),
			"type":   t.Type(),
			"status": t.Status(),
		}
		if p := t.ParentID(); p != nil {
			props["parent_id"] = *p
		}
		features = append(features, GeoJSONFeature{
			Type:       "Feature",
			Geometry:   geometry,
			Properties: props,
		})
	}
	return GeoJSONFeatureCollection{Type: "FeatureCollection", Features: features}, nil
}

func (s *TerritoryService) publish(changeType string, t territory.Territory) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&events.TerritoryChangedV1{
		EventID:      uuid.New(),
		EventVersion: events.EventVersionV1,
		TenantID:     t.TenantID(),
		ChangeType:   changeType,
		TerritoryID:  t.ID(),
		OccurredAt:   time.Now().UTC(),
	})
}

func containsTerritory(all []territory.Territory, id uuid.UUID) bool {
	for _, t := range all {
		if t.ID() == id {
			return true
		}
	}
	return false
}
