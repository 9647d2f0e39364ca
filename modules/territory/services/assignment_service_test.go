package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/assignment"
	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
)

type assignmentFixture struct {
	territories *memTerritoryRepo
	rules       *memRuleRepo
	assignments *memAssignmentRepo
	resolver    *memResolver
	svc         *AssignmentService
}

func newAssignmentFixture() *assignmentFixture {
	territories := newMemTerritoryRepo()
	rules := newMemRuleRepo()
	assignments := newMemAssignmentRepo(territories)
	resolver := newMemResolver()
	return &assignmentFixture{
		territories: territories,
		rules:       rules,
		assignments: assignments,
		resolver:    resolver,
		svc:         NewAssignmentService(assignments, territories, rules, resolver, nil, discardLogger()),
	}
}

func (f *assignmentFixture) seedTerritory(name string, ownerUserID *int64) territory.Territory {
	t := territory.Hydrate(
		uuid.New(), testTenant, name, name, territory.TypeGeographic,
		territory.StatusActive, "", nil, ownerUserID, nil, 0, time.Now(), time.Now(),
	)
	f.territories.seed(t)
	return t
}

func (f *assignmentFixture) seedLead(fields map[string]any) assignable.Ref {
	ref := assignable.Ref{Kind: assignable.KindLead, ID: uuid.New()}
	f.resolver.seed(testTenant, assignable.Entity{Ref: ref, Fields: fields})
	return ref
}

func (f *assignmentFixture) seedRule(territoryID uuid.UUID, priority int, field string, op territory.Operator, raw string) {
	f.rules.seed(territory.HydrateRule(
		uuid.New(), testTenant, territoryID, territory.RuleTypeCustom, field,
		op, []byte(raw), priority, true, f.rules.nextCreatedAt(), time.Now(),
	))
}

func TestManualAssign_WritesCurrentAndHistory(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	lead := f.seedLead(map[string]any{"country": "US"})
	ctx := context.Background()

	got, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{
		Entity:      lead,
		TerritoryID: target.ID(),
		ActorID:     7,
	})
	require.NoError(t, err)
	require.Equal(t, target.ID(), got.TerritoryID())
	require.Equal(t, assignment.MethodManual, got.Method())
	require.Equal(t, int64(7), got.AssignedBy())

	current, err := f.svc.CurrentTerritory(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Equal(t, target.ID(), current.ID())

	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Nil(t, history[0].PreviousTerritoryID)
	require.NotNil(t, history[0].NewTerritoryID)
	require.Equal(t, target.ID(), *history[0].NewTerritoryID)
	require.Equal(t, assignment.MethodManual, history[0].Method)
}

func TestManualAssign_UnknownEntity(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)

	_, err := f.svc.ManualAssign(context.Background(), testTenant, AssignInput{
		Entity:      assignable.Ref{Kind: assignable.KindLead, ID: uuid.New()},
		TerritoryID: target.ID(),
	})
	requireServiceError(t, err, http.StatusNotFound, "ASSIGNMENT_ENTITY_NOT_FOUND")
}

func TestManualAssign_UnknownTerritory(t *testing.T) {
	f := newAssignmentFixture()
	lead := f.seedLead(nil)

	_, err := f.svc.ManualAssign(context.Background(), testTenant, AssignInput{
		Entity:      lead,
		TerritoryID: uuid.MustParse("99999999-9999-9999-9999-999999999999"),
	})
	requireServiceError(t, err, http.StatusNotFound, "TERRITORY_NOT_FOUND")
}

func TestManualAssign_TransfersOwnership(t *testing.T) {
	f := newAssignmentFixture()
	owner := int64(42)
	target := f.seedTerritory("US-WEST", &owner)
	lead := f.seedLead(nil)

	_, err := f.svc.ManualAssign(context.Background(), testTenant, AssignInput{
		Entity:            lead,
		TerritoryID:       target.ID(),
		ActorID:           7,
		TransferOwnership: true,
	})
	require.NoError(t, err)
	require.Equal(t, owner, f.resolver.owners[assignmentKey(testTenant, lead)])
}

func TestManualAssign_NoOwnershipTransferWithoutTerritoryOwner(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	lead := f.seedLead(nil)

	_, err := f.svc.ManualAssign(context.Background(), testTenant, AssignInput{
		Entity:            lead,
		TerritoryID:       target.ID(),
		TransferOwnership: true,
	})
	require.NoError(t, err)
	require.NotContains(t, f.resolver.owners, assignmentKey(testTenant, lead))
}

func TestReassign_RequiresExistingAssignment(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	lead := f.seedLead(nil)

	_, err := f.svc.Reassign(context.Background(), testTenant, AssignInput{
		Entity:      lead,
		TerritoryID: target.ID(),
	})
	requireServiceError(t, err, http.StatusConflict, "ASSIGNMENT_CONFLICT")
}

func TestReassign_RecordsPreviousTerritory(t *testing.T) {
	f := newAssignmentFixture()
	first := f.seedTerritory("US-WEST", nil)
	second := f.seedTerritory("US-EAST", nil)
	lead := f.seedLead(nil)
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: first.ID(), ActorID: 7})
	require.NoError(t, err)

	got, err := f.svc.Reassign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: second.ID(), ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, second.ID(), got.TerritoryID())
	require.Equal(t, assignment.MethodReassignment, got.Method())

	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	require.NotNil(t, history[0].PreviousTerritoryID)
	require.Equal(t, first.ID(), *history[0].PreviousTerritoryID)
	require.Equal(t, second.ID(), *history[0].NewTerritoryID)
	require.Equal(t, int64(9), history[0].ActorID)
}

func TestResolveAutomatic_NoMatchWritesNothing(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	f.seedRule(target.ID(), 1, "country", territory.OpEquals, `"DE"`)
	lead := f.seedLead(map[string]any{"country": "US"})
	ctx := context.Background()

	got, err := f.svc.ResolveAutomatic(ctx, testTenant, lead, 7)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = f.svc.CurrentTerritory(ctx, testTenant, lead)
	requireServiceError(t, err, http.StatusNotFound, "ASSIGNMENT_NOT_FOUND")
	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestResolveAutomatic_PicksLowestPriorityMatch(t *testing.T) {
	f := newAssignmentFixture()
	geographic := f.seedTerritory("US-ALL", nil)
	enterprise := f.seedTerritory("ENTERPRISE", nil)
	f.seedRule(geographic.ID(), 5, "country", territory.OpEquals, `"US"`)
	f.seedRule(enterprise.ID(), 1, "account_size", territory.OpGreaterThan, `1000000`)
	lead := f.seedLead(map[string]any{"country": "US", "account_size": float64(2000000)})

	got, err := f.svc.ResolveAutomatic(context.Background(), testTenant, lead, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, enterprise.ID(), got.TerritoryID())
	require.Equal(t, assignment.MethodRuleBased, got.Method())
}

func TestResolveAutomatic_KeepsUnchangedWinner(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-ALL", nil)
	f.seedRule(target.ID(), 1, "country", territory.OpEquals, `"US"`)
	lead := f.seedLead(map[string]any{"country": "US"})
	ctx := context.Background()

	first, err := f.svc.ResolveAutomatic(ctx, testTenant, lead, 7)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.svc.ResolveAutomatic(ctx, testTenant, lead, 7)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, first.TerritoryID(), second.TerritoryID())

	// The unchanged winner leaves no extra ledger entry.
	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestResolveAutomatic_SupersedesChangedWinner(t *testing.T) {
	f := newAssignmentFixture()
	old := f.seedTerritory("US-ALL", nil)
	lead := f.seedLead(map[string]any{"country": "US", "account_size": float64(2000000)})
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: old.ID(), ActorID: 7})
	require.NoError(t, err)

	enterprise := f.seedTerritory("ENTERPRISE", nil)
	f.seedRule(enterprise.ID(), 1, "account_size", territory.OpGreaterThan, `1000000`)

	got, err := f.svc.ResolveAutomatic(ctx, testTenant, lead, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, enterprise.ID(), got.TerritoryID())

	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, old.ID(), *history[0].PreviousTerritoryID)
	require.Equal(t, enterprise.ID(), *history[0].NewTerritoryID)
}

func TestUnassign_ClosesLedgerWithNullEntry(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	lead := f.seedLead(nil)
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: target.ID(), ActorID: 7})
	require.NoError(t, err)

	require.NoError(t, f.svc.Unassign(ctx, testTenant, lead, 9))

	_, err = f.svc.CurrentTerritory(ctx, testTenant, lead)
	requireServiceError(t, err, http.StatusNotFound, "ASSIGNMENT_NOT_FOUND")

	history, err := f.svc.History(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Nil(t, history[0].NewTerritoryID)
	require.NotNil(t, history[0].PreviousTerritoryID)
	require.Equal(t, target.ID(), *history[0].PreviousTerritoryID)
	require.Equal(t, int64(9), history[0].ActorID)
}

func TestUnassign_WithoutAssignment(t *testing.T) {
	f := newAssignmentFixture()
	lead := f.seedLead(nil)

	err := f.svc.Unassign(context.Background(), testTenant, lead, 9)
	requireServiceError(t, err, http.StatusNotFound, "ASSIGNMENT_NOT_FOUND")
}

func TestReplayCurrent_MatchesProjection(t *testing.T) {
	f := newAssignmentFixture()
	first := f.seedTerritory("US-WEST", nil)
	second := f.seedTerritory("US-EAST", nil)
	third := f.seedTerritory("US-SOUTH", nil)
	lead := f.seedLead(nil)
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: first.ID(), ActorID: 7})
	require.NoError(t, err)
	_, err = f.svc.Reassign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: second.ID(), ActorID: 7})
	require.NoError(t, err)
	require.NoError(t, f.svc.Unassign(ctx, testTenant, lead, 7))
	_, err = f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: third.ID(), ActorID: 7})
	require.NoError(t, err)

	projected, err := f.assignments.GetCurrent(ctx, testTenant, lead)
	require.NoError(t, err)
	replayed, err := f.assignments.ReplayCurrent(ctx, testTenant, lead)
	require.NoError(t, err)
	require.Equal(t, projected.TerritoryID(), replayed.TerritoryID())
	require.Equal(t, third.ID(), replayed.TerritoryID())
}

func TestBulkReassign_ReportsPartialFailures(t *testing.T) {
	f := newAssignmentFixture()
	origin := f.seedTerritory("US-WEST", nil)
	target := f.seedTerritory("US-EAST", nil)
	assigned := f.seedLead(nil)
	unassigned := f.seedLead(nil)
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: assigned, TerritoryID: origin.ID(), ActorID: 7})
	require.NoError(t, err)

	result, err := f.svc.BulkReassign(ctx, testTenant, BulkReassignInput{
		TerritoryID: target.ID(),
		Entities:    []assignable.Ref{assigned, unassigned},
		ActorID:     7,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Len(t, result.Failures, 1)
	require.Equal(t, unassigned, result.Failures[0].Entity)

	current, err := f.svc.CurrentTerritory(ctx, testTenant, assigned)
	require.NoError(t, err)
	require.Equal(t, target.ID(), current.ID())
}

func TestBulkReassign_FailsFastOnMissingTerritory(t *testing.T) {
	f := newAssignmentFixture()
	lead := f.seedLead(nil)

	_, err := f.svc.BulkReassign(context.Background(), testTenant, BulkReassignInput{
		TerritoryID: uuid.MustParse("99999999-9999-9999-9999-999999999999"),
		Entities:    []assignable.Ref{lead},
	})
	requireServiceError(t, err, http.StatusNotFound, "TERRITORY_NOT_FOUND")
}

func TestCurrentTerritory_DanglingAssignment(t *testing.T) {
	f := newAssignmentFixture()
	target := f.seedTerritory("US-WEST", nil)
	lead := f.seedLead(nil)
	ctx := context.Background()

	_, err := f.svc.ManualAssign(ctx, testTenant, AssignInput{Entity: lead, TerritoryID: target.ID(), ActorID: 7})
	require.NoError(t, err)

	// Deleting the territory leaves the assignment dangling rather than
	// silently unassigning the entity.
	require.NoError(t, f.territories.Delete(ctx, testTenant, target.ID()))

	_, err = f.svc.CurrentTerritory(ctx, testTenant, lead)
	requireServiceError(t, err, http.StatusNotFound, "TERRITORY_NOT_FOUND")

	dangling, err := f.svc.NeedsReassignment(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	require.Equal(t, lead, dangling[0].Entity())
}

func TestHistory_UnknownEntity(t *testing.T) {
	f := newAssignmentFixture()

	_, err := f.svc.History(context.Background(), testTenant, assignable.Ref{Kind: assignable.KindLead, ID: uuid.New()})
	requireServiceError(t, err, http.StatusNotFound, "ASSIGNMENT_ENTITY_NOT_FOUND")
}
