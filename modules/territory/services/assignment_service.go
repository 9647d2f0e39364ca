package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/assignment"
	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
	"github.com/iota-uz/territory/modules/territory/domain/events"
	"github.com/iota-uz/territory/pkg/eventbus"
)

// AssignmentService turns territory matches (or explicit admin choices)
// into the single current assignment of an entity, with every transition
// recorded in the ledger. Each mutation is atomic per entity: assignment
// write, ownership transfer and history append commit or roll back
// together, serialized through the repository lock.
type AssignmentService struct {
	repo        assignment.Repository
	territories territory.Repository
	rules       territory.RuleRepository
	resolver    assignable.Resolver
	publisher   eventbus.EventBus
	log         *logrus.Logger
}

func NewAssignmentService(
	repo assignment.Repository,
	territories territory.Repository,
	rules territory.RuleRepository,
	resolver assignable.Resolver,
	publisher eventbus.EventBus,
	log *logrus.Logger,
) *AssignmentService {
	return &AssignmentService{
		repo:        repo,
		territories: territories,
		rules:       rules,
		resolver:    resolver,
		publisher:   publisher,
		log:         log,
	}
}

// ResolveAutomatic matches the entity against the active rule set and
// persists the winning territory as a rule-based assignment. It returns
// nil without writing when no territory matches, and leaves an existing
// assignment untouched when the winner is unchanged.
func (s *AssignmentService) ResolveAutomatic(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref, actorID int64) (*assignment.Assignment, error) {
	if tenantID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}

	type outcome struct {
		applied *appliedAssignment
		matched bool
	}
	out, err := inTx(ctx, tenantID, func(txCtx context.Context) (outcome, error) {
		entity, err := s.resolver.Resolve(txCtx, tenantID, ref)
		if err != nil {
			return outcome{}, mapAssignableError(err)
		}
		territories, err := s.territories.GetAll(txCtx, tenantID)
		if err != nil {
			return outcome{}, err
		}
		rules, err := s.rules.GetAll(txCtx, tenantID)
		if err != nil {
			return outcome{}, err
		}

		matches := MatchTerritories(s.log, entity, territories, rules)
		if len(matches) == 0 {
			return outcome{}, nil
		}
		winner := matches[0].Territory

		if err := s.repo.Lock(txCtx, tenantID, ref); err != nil {
			return outcome{}, err
		}
		prev, err := s.currentOrZero(txCtx, tenantID, ref)
		if err != nil {
			return outcome{}, err
		}
		if !prev.IsZero() && prev.TerritoryID() == winner.ID() {
			return outcome{applied: &appliedAssignment{assignment: prev, previous: prev}, matched: true}, nil
		}

		applied, err := s.applyLocked(txCtx, tenantID, applyParams{
			entity:      ref,
			prev:        prev,
			territoryID: winner.ID(),
			actorID:     actorID,
			method:      assignment.MethodRuleBased,
		})
		if err != nil {
			return outcome{}, err
		}
		return outcome{applied: applied, matched: true}, nil
	})
	recordAssignment(string(assignment.MethodRuleBased), err)
	if err != nil {
		return nil, err
	}
	if !out.matched {
		return nil, nil
	}
	if out.applied.written {
		s.publishChange(tenantID, out.applied)
	}
	a := out.applied.assignment
	return &a, nil
}

type AssignInput struct {
	Entity            assignable.Ref
	TerritoryID       uuid.UUID
	ActorID           int64
	TransferOwnership bool
}

// ManualAssign binds the entity to the given territory unconditionally,
// bypassing rule matching.
func (s *AssignmentService) ManualAssign(ctx context.Context, tenantID uuid.UUID, in AssignInput) (assignment.Assignment, error) {
	return s.assign(ctx, tenantID, in, assignment.MethodManual, false)
}

// Reassign is ManualAssign with history semantics: it requires an existing
// assignment so the ledger always records a meaningful previous territory.
func (s *AssignmentService) Reassign(ctx context.Context, tenantID uuid.UUID, in AssignInput) (assignment.Assignment, error) {
	return s.assign(ctx, tenantID, in, assignment.MethodReassignment, true)
}

func (s *AssignmentService) assign(ctx context.Context, tenantID uuid.UUID, in AssignInput, method assignment.Method, requirePrior bool) (assignment.Assignment, error) {
	if tenantID == uuid.Nil {
		return assignment.Assignment{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	if in.TerritoryID == uuid.Nil {
		return assignment.Assignment{}, newServiceError(http.StatusBadRequest, "TERRITORY_VALIDATION", "territory_id is required", nil)
	}

	applied, err := inTx(ctx, tenantID, func(txCtx context.Context) (*appliedAssignment, error) {
		if _, err := s.resolver.Resolve(txCtx, tenantID, in.Entity); err != nil {
			return nil, mapAssignableError(err)
		}
		target, err := s.territories.GetByID(txCtx, tenantID, in.TerritoryID)
		if err != nil {
			return nil, mapTerritoryError(err)
		}

		if err := s.repo.Lock(txCtx, tenantID, in.Entity); err != nil {
			return nil, err
		}
		prev, err := s.currentOrZero(txCtx, tenantID, in.Entity)
		if err != nil {
			return nil, err
		}
		if requirePrior && prev.IsZero() {
			return nil, newServiceError(http.StatusConflict, "ASSIGNMENT_CONFLICT", "entity has no current assignment", nil)
		}

		return s.applyLocked(txCtx, tenantID, applyParams{
			entity:            in.Entity,
			prev:              prev,
			territoryID:       in.TerritoryID,
			actorID:           in.ActorID,
			method:            method,
			transferOwnership: in.TransferOwnership,
			ownerUserID:       target.OwnerUserID(),
		})
	})
	recordAssignment(string(method), err)
	if err != nil {
		return assignment.Assignment{}, err
	}

	s.publishChange(tenantID, applied)
	return applied.assignment, nil
}

type BulkReassignInput struct {
	TerritoryID       uuid.UUID
	Entities          []assignable.Ref
	ActorID           int64
	TransferOwnership bool
}

type BulkReassignFailure struct {
	Entity assignable.Ref `json:"entity"`
	Reason string         `json:"reason"`
}

type BulkReassignResult struct {
	Count    int                   `json:"count"`
	Failures []BulkReassignFailure `json:"failures"`
}

// BulkReassign reassigns every entity independently, each in its own
// transaction. A failing entity is recorded and skipped; entities already
// processed are never rolled back, so the result is a partial-success
// report rather than an error.
func (s *AssignmentService) BulkReassign(ctx context.Context, tenantID uuid.UUID, in BulkReassignInput) (BulkReassignResult, error) {
	if tenantID == uuid.Nil {
		return BulkReassignResult{}, newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}
	// The target territory is shared by the whole batch; its absence fails
	// fast instead of producing one identical failure per entity.
	if _, err := s.territories.GetByID(ctx, tenantID, in.TerritoryID); err != nil {
		return BulkReassignResult{}, mapTerritoryError(err)
	}

	result := BulkReassignResult{Failures: []BulkReassignFailure{}}
	for _, ref := range in.Entities {
		_, err := s.assign(ctx, tenantID, AssignInput{
			Entity:            ref,
			TerritoryID:       in.TerritoryID,
			ActorID:           in.ActorID,
			TransferOwnership: in.TransferOwnership,
		}, assignment.MethodBulkReassignment, true)
		if err != nil {
			result.Failures = append(result.Failures, BulkReassignFailure{
				Entity: ref,
				Reason: err.Error(),
			})
			if s.log != nil {
				s.log.WithFields(logrus.Fields{
					"entity":       ref.String(),
					"territory_id": in.TerritoryID,
				}).WithError(err).Warn("bulk reassign: skipping entity")
			}
			continue
		}
		result.Count++
	}
	return result, nil
}

// Unassign removes the current assignment and closes the ledger with a
// null new-territory entry. Ownership is never reverted.
func (s *AssignmentService) Unassign(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref, actorID int64) error {
	if tenantID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, "TERRITORY_NO_TENANT", "tenant_id is required", nil)
	}

	applied, err := inTx(ctx, tenantID, func(txCtx context.Context) (*appliedAssignment, error) {
		if _, err := s.resolver.Resolve(txCtx, tenantID, ref); err != nil {
			return nil, mapAssignableError(err)
		}
		if err := s.repo.Lock(txCtx, tenantID, ref); err != nil {
			return nil, err
		}
		prev, err := s.repo.GetCurrent(txCtx, tenantID, ref)
		if err != nil {
			if errors.Is(err, assignment.ErrNotFound) {
				return nil, newServiceError(http.StatusNotFound, "ASSIGNMENT_NOT_FOUND", "entity has no current assignment", err)
			}
			return nil, err
		}
		if err := s.repo.DeleteCurrent(txCtx, tenantID, ref); err != nil {
			return nil, err
		}

		prevID := prev.TerritoryID()
		entry, err := s.repo.AppendHistory(txCtx, assignment.HistoryEntry{
			TenantID:            tenantID,
			Entity:              ref,
			PreviousTerritoryID: &prevID,
			NewTerritoryID:      nil,
			ActorID:             actorID,
			Method:              assignment.MethodManual,
		})
		if err != nil {
			return nil, err
		}
		return &appliedAssignment{previous: prev, entry: entry, written: true}, nil
	})
	recordAssignment("unassign", err)
	if err != nil {
		return err
	}

	s.publishChange(tenantID, applied)
	return nil
}

// CurrentTerritory resolves the entity's current territory. An assignment
// pointing at a deleted territory yields TERRITORY_NOT_FOUND; such entities
// show up in the needs-reassignment report.
func (s *AssignmentService) CurrentTerritory(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (territory.Territory, error) {
	current, err := s.repo.GetCurrent(ctx, tenantID, ref)
	if err != nil {
		if errors.Is(err, assignment.ErrNotFound) {
			return territory.Territory{}, newServiceError(http.StatusNotFound, "ASSIGNMENT_NOT_FOUND", "entity has no current assignment", err)
		}
		return territory.Territory{}, err
	}
	t, err := s.territories.GetByID(ctx, tenantID, current.TerritoryID())
	if err != nil {
		return territory.Territory{}, mapTerritoryError(err)
	}
	return t, nil
}

// History returns the entity's full assignment log, newest first.
func (s *AssignmentService) History(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) ([]assignment.HistoryEntry, error) {
	if _, err := s.resolver.Resolve(ctx, tenantID, ref); err != nil {
		return nil, mapAssignableError(err)
	}
	return s.repo.History(ctx, tenantID, ref)
}

// NeedsReassignment lists current assignments whose territory has been
// deleted since they were written.
func (s *AssignmentService) NeedsReassignment(ctx context.Context, tenantID uuid.UUID) ([]assignment.Assignment, error) {
	return s.repo.ListDangling(ctx, tenantID)
}

type applyParams struct {
	entity            assignable.Ref
	prev              assignment.Assignment
	territoryID       uuid.UUID
	actorID           int64
	method            assignment.Method
	transferOwnership bool
	ownerUserID       *int64
}

type appliedAssignment struct {
	assignment assignment.Assignment
	previous   assignment.Assignment
	entry      assignment.HistoryEntry
	written    bool
}

// applyLocked performs the assignment upsert, the optional ownership
// transfer and the history append. The caller holds the per-entity lock.
func (s *AssignmentService) applyLocked(ctx context.Context, tenantID uuid.UUID, p applyParams) (*appliedAssignment, error) {
	written, err := s.repo.Upsert(ctx, assignment.New(tenantID, p.entity, p.territoryID, p.actorID, p.method))
	if err != nil {
		return nil, mapPgError(err)
	}

	if p.transferOwnership && p.ownerUserID != nil {
		if err := s.resolver.TransferOwnership(ctx, tenantID, p.entity, *p.ownerUserID); err != nil {
			return nil, mapAssignableError(err)
		}
	}

	var prevID *uuid.UUID
	if !p.prev.IsZero() {
		id := p.prev.TerritoryID()
		prevID = &id
	}
	newID := p.territoryID
	entry, err := s.repo.AppendHistory(ctx, assignment.HistoryEntry{
		TenantID:            tenantID,
		Entity:              p.entity,
		PreviousTerritoryID: prevID,
		NewTerritoryID:      &newID,
		ActorID:             p.actorID,
		Method:              p.method,
	})
	if err != nil {
		return nil, err
	}

	return &appliedAssignment{
		assignment: written,
		previous:   p.prev,
		entry:      entry,
		written:    true,
	}, nil
}

func (s *AssignmentService) currentOrZero(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignment.Assignment, error) {
	current, err := s.repo.GetCurrent(ctx, tenantID, ref)
	if err != nil {
		if errors.Is(err, assignment.ErrNotFound) {
			return assignment.Assignment{}, nil
		}
		return assignment.Assignment{}, err
	}
	return current, nil
}

func (s *AssignmentService) publishChange(tenantID uuid.UUID, applied *appliedAssignment) {
	if s.publisher == nil || applied == nil || !applied.written {
		return
	}
	s.publisher.Publish(&events.AssignmentChangedV1{
		EventID:             uuid.New(),
		EventVersion:        events.EventVersionV1,
		TenantID:            tenantID,
		EntityKind:          string(applied.entry.Entity.Kind),
		EntityID:            applied.entry.Entity.ID,
		PreviousTerritoryID: applied.entry.PreviousTerritoryID,
		NewTerritoryID:      applied.entry.NewTerritoryID,
		Method:              string(applied.entry.Method),
		ActorID:             applied.entry.ActorID,
		OccurredAt:          time.Now().UTC(),
	})
}

func mapAssignableError(err error) error {
	if errors.Is(err, assignable.ErrEntityNotFound) {
		return newServiceError(http.StatusNotFound, "ASSIGNMENT_ENTITY_NOT_FOUND", "assignable entity not found", err)
	}
	return mapPgError(err)
}

func mapTerritoryError(err error) error {
	if errors.Is(err, territory.ErrNotFound) {
		return newServiceError(http.StatusNotFound, "TERRITORY_NOT_FOUND", "territory not found", err)
	}
	if errors.Is(err, territory.ErrRuleNotFound) {
		return newServiceError(http.StatusNotFound, "TERRITORY_RULE_NOT_FOUND", "rule not found", err)
	}
	return mapPgError(err)
}
