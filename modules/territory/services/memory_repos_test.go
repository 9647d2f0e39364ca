package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/assignment"
	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
)

// In-memory repository implementations backing the service tests. They
// mirror the persistence contracts closely enough for the services to run
// without a database; inTx detects the missing pool and skips transaction
// handling.

type memTerritoryRepo struct {
	items map[uuid.UUID]territory.Territory
}

func newMemTerritoryRepo() *memTerritoryRepo {
	return &memTerritoryRepo{items: map[uuid.UUID]territory.Territory{}}
}

func (r *memTerritoryRepo) seed(t territory.Territory) {
	r.items[t.ID()] = t
}

func (r *memTerritoryRepo) GetPaginated(_ context.Context, tenantID uuid.UUID, params *territory.FindParams) ([]territory.Territory, int64, error) {
	all, err := r.GetAll(context.Background(), tenantID)
	if err != nil {
		return nil, 0, err
	}
	return all, int64(len(all)), nil
}

func (r *memTerritoryRepo) GetAll(_ context.Context, tenantID uuid.UUID) ([]territory.Territory, error) {
	out := make([]territory.Territory, 0, len(r.items))
	for _, t := range r.items {
		if t.TenantID() == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *memTerritoryRepo) GetByID(_ context.Context, tenantID uuid.UUID, id uuid.UUID) (territory.Territory, error) {
	t, ok := r.items[id]
	if !ok || t.TenantID() != tenantID {
		return territory.Territory{}, territory.ErrNotFound
	}
	return t, nil
}

func (r *memTerritoryRepo) GetByCode(_ context.Context, tenantID uuid.UUID, code string) (territory.Territory, error) {
	for _, t := range r.items {
		if t.TenantID() == tenantID && t.Code() == code {
			return t, nil
		}
	}
	return territory.Territory{}, territory.ErrNotFound
}

func (r *memTerritoryRepo) Create(_ context.Context, t territory.Territory) (territory.Territory, error) {
	now := time.Now()
	created := territory.Hydrate(
		uuid.New(), t.TenantID(), t.Name(), t.Code(), t.Type(), t.Status(),
		t.Description(), t.ParentID(), t.OwnerUserID(), t.Boundaries(), t.SortOrder(),
		now, now,
	)
	r.items[created.ID()] = created
	return created, nil
}

func (r *memTerritoryRepo) Update(_ context.Context, t territory.Territory) (territory.Territory, error) {
	current, ok := r.items[t.ID()]
	if !ok || current.TenantID() != t.TenantID() {
		return territory.Territory{}, territory.ErrNotFound
	}
	updated := territory.Hydrate(
		t.ID(), t.TenantID(), t.Name(), t.Code(), t.Type(), t.Status(),
		t.Description(), t.ParentID(), t.OwnerUserID(), t.Boundaries(), t.SortOrder(),
		current.CreatedAt(), time.Now(),
	)
	r.items[t.ID()] = updated
	return updated, nil
}

func (r *memTerritoryRepo) Delete(_ context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	t, ok := r.items[id]
	if !ok || t.TenantID() != tenantID {
		return territory.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type memRuleRepo struct {
	items map[uuid.UUID]territory.Rule
	seq   int
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{items: map[uuid.UUID]territory.Rule{}}
}

func (r *memRuleRepo) nextCreatedAt() time.Time {
	r.seq++
	return time.Unix(0, int64(r.seq)*int64(time.Millisecond))
}

func (r *memRuleRepo) seed(rule territory.Rule) {
	r.items[rule.ID()] = rule
}

func (r *memRuleRepo) GetByID(_ context.Context, tenantID uuid.UUID, id uuid.UUID) (territory.Rule, error) {
	rule, ok := r.items[id]
	if !ok || rule.TenantID() != tenantID {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	return rule, nil
}

func (r *memRuleRepo) GetByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]territory.Rule, error) {
	all, err := r.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]territory.Rule, 0, len(all))
	for _, rule := range all {
		if rule.TerritoryID() == territoryID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memRuleRepo) GetAll(_ context.Context, tenantID uuid.UUID) ([]territory.Rule, error) {
	out := make([]territory.Rule, 0, len(r.items))
	for _, rule := range r.items {
		if rule.TenantID() == tenantID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

func (r *memRuleRepo) Create(_ context.Context, rule territory.Rule) (territory.Rule, error) {
	created := territory.HydrateRule(
		uuid.New(), rule.TenantID(), rule.TerritoryID(), rule.RuleType(), rule.FieldName(),
		rule.Operator(), rule.RawValue(), rule.Priority(), rule.IsActive(),
		r.nextCreatedAt(), time.Now(),
	)
	r.items[created.ID()] = created
	return created, nil
}

func (r *memRuleRepo) Update(_ context.Context, rule territory.Rule) (territory.Rule, error) {
	current, ok := r.items[rule.ID()]
	if !ok || current.TenantID() != rule.TenantID() {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	updated := territory.HydrateRule(
		rule.ID(), rule.TenantID(), rule.TerritoryID(), rule.RuleType(), rule.FieldName(),
		rule.Operator(), rule.RawValue(), rule.Priority(), rule.IsActive(),
		current.CreatedAt(), time.Now(),
	)
	r.items[rule.ID()] = updated
	return updated, nil
}

func (r *memRuleRepo) SetActive(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, active bool) (territory.Rule, error) {
	current, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return territory.Rule{}, err
	}
	updated := territory.HydrateRule(
		current.ID(), current.TenantID(), current.TerritoryID(), current.RuleType(), current.FieldName(),
		current.Operator(), current.RawValue(), current.Priority(), active,
		current.CreatedAt(), time.Now(),
	)
	r.items[id] = updated
	return updated, nil
}

func (r *memRuleRepo) SetPriority(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, priority int) (territory.Rule, error) {
	current, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return territory.Rule{}, err
	}
	updated := territory.HydrateRule(
		current.ID(), current.TenantID(), current.TerritoryID(), current.RuleType(), current.FieldName(),
		current.Operator(), current.RawValue(), priority, current.IsActive(),
		current.CreatedAt(), time.Now(),
	)
	r.items[id] = updated
	return updated, nil
}

func (r *memRuleRepo) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	delete(r.items, id)
	return nil
}

type memAssignmentRepo struct {
	territories *memTerritoryRepo
	current     map[string]assignment.Assignment
	history     []assignment.HistoryEntry
	seq         int
}

func newMemAssignmentRepo(territories *memTerritoryRepo) *memAssignmentRepo {
	return &memAssignmentRepo{
		territories: territories,
		current:     map[string]assignment.Assignment{},
	}
}

func assignmentKey(tenantID uuid.UUID, ref assignable.Ref) string {
	return tenantID.String() + "/" + ref.String()
}

func (r *memAssignmentRepo) GetCurrent(_ context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignment.Assignment, error) {
	a, ok := r.current[assignmentKey(tenantID, ref)]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return a, nil
}

func (r *memAssignmentRepo) Lock(_ context.Context, _ uuid.UUID, _ assignable.Ref) error {
	return nil
}

func (r *memAssignmentRepo) Upsert(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	written := assignment.Hydrate(a.TenantID(), a.Entity(), a.TerritoryID(), a.AssignedBy(), time.Now(), a.Method())
	r.current[assignmentKey(a.TenantID(), a.Entity())] = written
	return written, nil
}

func (r *memAssignmentRepo) DeleteCurrent(_ context.Context, tenantID uuid.UUID, ref assignable.Ref) error {
	key := assignmentKey(tenantID, ref)
	if _, ok := r.current[key]; !ok {
		return assignment.ErrNotFound
	}
	delete(r.current, key)
	return nil
}

func (r *memAssignmentRepo) AppendHistory(_ context.Context, entry assignment.HistoryEntry) (assignment.HistoryEntry, error) {
	r.seq++
	entry.ID = uuid.New()
	entry.OccurredAt = time.Unix(0, int64(r.seq)*int64(time.Millisecond))
	r.history = append(r.history, entry)
	return entry, nil
}

func (r *memAssignmentRepo) History(_ context.Context, tenantID uuid.UUID, ref assignable.Ref) ([]assignment.HistoryEntry, error) {
	var out []assignment.HistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		e := r.history[i]
		if e.TenantID == tenantID && e.Entity == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) ReplayCurrent(_ context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignment.Assignment, error) {
	var current assignment.Assignment
	found := false
	for _, e := range r.history {
		if e.TenantID != tenantID || e.Entity != ref {
			continue
		}
		if e.NewTerritoryID == nil {
			current = assignment.Assignment{}
			found = false
			continue
		}
		current = assignment.Hydrate(e.TenantID, e.Entity, *e.NewTerritoryID, e.ActorID, e.OccurredAt, e.Method)
		found = true
	}
	if !found {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return current, nil
}

func (r *memAssignmentRepo) ListByTerritory(_ context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]assignment.Assignment, error) {
	out := []assignment.Assignment{}
	for _, a := range r.current {
		if a.TenantID() == tenantID && a.TerritoryID() == territoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) ListDangling(ctx context.Context, tenantID uuid.UUID) ([]assignment.Assignment, error) {
	out := []assignment.Assignment{}
	for _, a := range r.current {
		if a.TenantID() != tenantID {
			continue
		}
		if _, err := r.territories.GetByID(ctx, tenantID, a.TerritoryID()); err != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

type memResolver struct {
	entities map[string]assignable.Entity
	owners   map[string]int64
}

func newMemResolver() *memResolver {
	return &memResolver{
		entities: map[string]assignable.Entity{},
		owners:   map[string]int64{},
	}
}

func (r *memResolver) seed(tenantID uuid.UUID, e assignable.Entity) {
	r.entities[assignmentKey(tenantID, e.Ref)] = e
}

func (r *memResolver) Resolve(_ context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignable.Entity, error) {
	e, ok := r.entities[assignmentKey(tenantID, ref)]
	if !ok {
		return assignable.Entity{}, assignable.ErrEntityNotFound
	}
	return e, nil
}

func (r *memResolver) TransferOwnership(_ context.Context, tenantID uuid.UUID, ref assignable.Ref, userID int64) error {
	key := assignmentKey(tenantID, ref)
	if _, ok := r.entities[key]; !ok {
		return assignable.ErrEntityNotFound
	}
	r.owners[key] = userID
	return nil
}
