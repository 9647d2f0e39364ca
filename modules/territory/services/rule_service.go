package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
)

type RuleService struct {
	repo        territory.RuleRepository
	territories territory.Repository
}

func NewRuleService(repo territory.RuleRepository, territories territory.Repository) *RuleService {
	return &RuleService{repo: repo, territories: territories}
}

type CreateRuleInput struct {
	TerritoryID uuid.UUID
	RuleType    territory.RuleType
	FieldName   string
	Operator    territory.Operator
	Value       json.RawMessage
	Priority    int
	IsActive    *bool
}

func (s *RuleService) Create(ctx context.Context, tenantID uuid.UUID, in CreateRuleInput) (territory.Rule, error) {
	if tenantID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	if in.TerritoryID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_VALIDATION", "territory_id is required", nil)
	}
	if err := validateRuleShape(in.RuleType, in.FieldName, in.Operator, in.Value); err != nil {
		return territory.Rule{}, err
	}
	if in.Priority < 0 {
		return territory.Rule{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "priority must be non-negative", nil)
	}

	return inTx(ctx, tenantID, func(txCtx context.Context) (territory.Rule, error) {
		if _, err := s.territories.GetByID(txCtx, tenantID, in.TerritoryID); err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}
		rule := territory.NewRule(tenantID, in.TerritoryID, in.RuleType, in.FieldName, in.Operator, in.Value, in.Priority)
		if in.IsActive != nil && !*in.IsActive {
			rule = territory.HydrateRule(
				rule.ID(), tenantID, in.TerritoryID, in.RuleType, in.FieldName,
				in.Operator, in.Value, in.Priority, false,
				rule.CreatedAt(), rule.UpdatedAt(),
			)
		}
		out, err := s.repo.Create(txCtx, rule)
		if err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}
		return out, nil
	})
}

type UpdateRuleInput struct {
	ID        uuid.UUID
	RuleType  *territory.RuleType
	FieldName *string
	Operator  *territory.Operator
	Value     json.RawMessage
	Priority  *int
	IsActive  *bool
}

func (s *RuleService) Update(ctx context.Context, tenantID uuid.UUID, in UpdateRuleInput) (territory.Rule, error) {
	if tenantID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	if in.ID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_VALIDATION", "id is required", nil)
	}

	return inTx(ctx, tenantID, func(txCtx context.Context) (territory.Rule, error) {
		current, err := s.repo.GetByID(txCtx, tenantID, in.ID)
		if err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}

		ruleType := current.RuleType()
		if in.RuleType != nil {
			ruleType = *in.RuleType
		}
		fieldName := current.FieldName()
		if in.FieldName != nil {
			fieldName = *in.FieldName
		}
		operator := current.Operator()
		if in.Operator != nil {
			operator = *in.Operator
		}
		value := current.RawValue()
		if in.Value != nil {
			value = in.Value
		}
		priority := current.Priority()
		if in.Priority != nil {
			priority = *in.Priority
			if priority < 0 {
				return territory.Rule{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "priority must be non-negative", nil)
			}
		}
		isActive := current.IsActive()
		if in.IsActive != nil {
			isActive = *in.IsActive
		}

		if err := validateRuleShape(ruleType, fieldName, operator, value); err != nil {
			return territory.Rule{}, err
		}

		updated := territory.HydrateRule(
			current.ID(), tenantID, current.TerritoryID(), ruleType, fieldName,
			operator, value, priority, isActive,
			current.CreatedAt(), current.UpdatedAt(),
		)
		out, err := s.repo.Update(txCtx, updated)
		if err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}
		return out, nil
	})
}

// Toggle flips a rule active or inactive without deleting it, so its
// priority slot and configuration survive.
func (s *RuleService) Toggle(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, active bool) (territory.Rule, error) {
	if tenantID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (territory.Rule, error) {
		out, err := s.repo.SetActive(txCtx, tenantID, id, active)
		if err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}
		return out, nil
	})
}

func (s *RuleService) Reorder(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, priority int) (territory.Rule, error) {
	if tenantID == uuid.Nil {
		return territory.Rule{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	if priority < 0 {
		return territory.Rule{}, newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "priority must be non-negative", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (territory.Rule, error) {
		out, err := s.repo.SetPriority(txCtx, tenantID, id, priority)
		if err != nil {
			return territory.Rule{}, mapTerritoryError(err)
		}
		return out, nil
	})
}

type RulePriority struct {
	ID       uuid.UUID
	Priority int
}

// BulkReorder applies a full set of priority updates in one transaction;
// either every rule is reordered or none are.
func (s *RuleService) BulkReorder(ctx context.Context, tenantID uuid.UUID, priorities []RulePriority) error {
	if tenantID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	for _, p := range priorities {
		if p.Priority < 0 {
			return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "priority must be non-negative", nil)
		}
	}

	_, err := inTx(ctx, tenantID, func(txCtx context.Context) (struct{}, error) {
		for _, p := range priorities {
			if _, err := s.repo.SetPriority(txCtx, tenantID, p.ID, p.Priority); err != nil {
				return struct{}{}, mapTerritoryError(err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (s *RuleService) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	if tenantID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	_, err := inTx(ctx, tenantID, func(txCtx context.Context) (struct{}, error) {
		if err := s.repo.Delete(txCtx, tenantID, id); err != nil {
			return struct{}{}, mapTerritoryError(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *RuleService) GetByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]territory.Rule, error) {
	return s.repo.GetByTerritory(ctx, tenantID, territoryID)
}

func validateRuleShape(ruleType territory.RuleType, fieldName string, operator territory.Operator, value json.RawMessage) error {
	if !ruleType.Valid() {
		return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "invalid rule_type", nil)
	}
	if strings.TrimSpace(fieldName) == "" {
		return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "field_name is required", nil)
	}
	if !operator.Valid() {
		return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", "invalid operator", nil)
	}
	// Writes reject what evaluation would merely skip.
	if _, err := territory.ParseValue(operator, value); err != nil {
		return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_VALIDATION", err.Error(), err)
	}
	return nil
}
