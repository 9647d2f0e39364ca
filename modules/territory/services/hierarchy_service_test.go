package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
)

var hierarchyTenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func hierarchyNode(id string, name string, parentID *uuid.UUID) territory.Territory {
	return territory.Hydrate(
		uuid.MustParse(id), hierarchyTenant, name, name, territory.TypeGeographic,
		territory.StatusActive, "", parentID, nil, nil, 0, time.Now(), time.Now(),
	)
}

// north-america ─┬─ usa ── west-coast
//
//	└─ canada
func hierarchyFixture(repo *memTerritoryRepo) (root, usa, west, canada territory.Territory) {
	root = hierarchyNode("aaaaaaaa-0000-0000-0000-000000000001", "NORTH-AMERICA", nil)
	rootID := root.ID()
	usa = hierarchyNode("aaaaaaaa-0000-0000-0000-000000000002", "USA", &rootID)
	usaID := usa.ID()
	west = hierarchyNode("aaaaaaaa-0000-0000-0000-000000000003", "WEST-COAST", &usaID)
	canada = hierarchyNode("aaaaaaaa-0000-0000-0000-000000000004", "CANADA", &rootID)
	for _, t := range []territory.Territory{root, usa, west, canada} {
		repo.seed(t)
	}
	return root, usa, west, canada
}

func TestDescendants_WalksTransitively(t *testing.T) {
	repo := newMemTerritoryRepo()
	root, usa, west, canada := hierarchyFixture(repo)
	svc := NewHierarchyService(repo)

	got, err := svc.Descendants(context.Background(), hierarchyTenant, root.ID())
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Contains(t, got, usa.ID())
	require.Contains(t, got, west.ID())
	require.Contains(t, got, canada.ID())

	got, err = svc.Descendants(context.Background(), hierarchyTenant, west.ID())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWouldCreateCycle(t *testing.T) {
	repo := newMemTerritoryRepo()
	root, usa, west, canada := hierarchyFixture(repo)
	svc := NewHierarchyService(repo)
	ctx := context.Background()

	cycle, err := svc.WouldCreateCycle(ctx, hierarchyTenant, root.ID(), root.ID())
	require.NoError(t, err)
	require.True(t, cycle, "a territory must not become its own parent")

	cycle, err = svc.WouldCreateCycle(ctx, hierarchyTenant, usa.ID(), west.ID())
	require.NoError(t, err)
	require.True(t, cycle, "reparenting under a descendant must be rejected")

	cycle, err = svc.WouldCreateCycle(ctx, hierarchyTenant, usa.ID(), canada.ID())
	require.NoError(t, err)
	require.False(t, cycle, "moving under a sibling is legal")
}

func TestAssignableParents_ExcludesSelfAndDescendants(t *testing.T) {
	repo := newMemTerritoryRepo()
	root, usa, west, canada := hierarchyFixture(repo)
	svc := NewHierarchyService(repo)

	got, err := svc.AssignableParents(context.Background(), hierarchyTenant, usa.ID())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, root.ID())
	require.Contains(t, got, canada.ID())
	require.NotContains(t, got, usa.ID())
	require.NotContains(t, got, west.ID())
}

func TestDescendants_TerminatesOnCorruptData(t *testing.T) {
	// Two territories parenting each other should never exist, but a
	// traversal over such data must still finish.
	repo := newMemTerritoryRepo()
	aID := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	bID := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	repo.seed(hierarchyNode(aID.String(), "A", &bID))
	repo.seed(hierarchyNode(bID.String(), "B", &aID))
	svc := NewHierarchyService(repo)

	got, err := svc.Descendants(context.Background(), hierarchyTenant, aID)
	require.NoError(t, err)
	require.Contains(t, got, bID)
}
