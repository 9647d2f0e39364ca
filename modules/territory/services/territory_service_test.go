package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
)

var testTenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func requireServiceError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, status, svcErr.Status)
	require.Equal(t, code, svcErr.Code)
}

func TestCreateTerritory_RequiresNameAndCode(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)

	_, err := svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name: "   ",
		Code: "US-WEST",
		Type: territory.TypeGeographic,
	})
	requireServiceError(t, err, http.StatusBadRequest, "TERRITORY_VALIDATION")

	_, err = svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name: "US West",
		Type: territory.TypeGeographic,
	})
	requireServiceError(t, err, http.StatusBadRequest, "TERRITORY_VALIDATION")
}

func TestCreateTerritory_RejectsUnknownType(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)

	_, err := svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name: "US West",
		Code: "US-WEST",
		Type: territory.Type("galactic"),
	})
	requireServiceError(t, err, http.StatusUnprocessableEntity, "TERRITORY_VALIDATION")
}

func TestCreateTerritory_RejectsMissingParent(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)
	missing := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	_, err := svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name:     "US West",
		Code:     "US-WEST",
		Type:     territory.TypeGeographic,
		ParentID: &missing,
	})
	requireServiceError(t, err, http.StatusUnprocessableEntity, "TERRITORY_INVALID_PARENT")
}

func TestCreateTerritory_DefaultsAndNormalizes(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)

	created, err := svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name: "  US West  ",
		Code: "us-west",
		Type: territory.TypeGeographic,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID())
	require.Equal(t, "US West", created.Name())
	require.Equal(t, "US-WEST", created.Code())
	require.Equal(t, territory.StatusActive, created.Status())
}

func TestUpdateTerritory_RejectsCycle(t *testing.T) {
	repo := newMemTerritoryRepo()
	root, _, west, _ := hierarchyFixture(repo)
	svc := NewTerritoryService(repo, nil)

	westID := west.ID()
	parent := &westID
	_, err := svc.Update(context.Background(), hierarchyTenant, UpdateTerritoryInput{
		ID:       root.ID(),
		ParentID: &parent,
	})
	requireServiceError(t, err, http.StatusUnprocessableEntity, "TERRITORY_CYCLE")
}

func TestUpdateTerritory_DetachesParent(t *testing.T) {
	repo := newMemTerritoryRepo()
	_, usa, _, _ := hierarchyFixture(repo)
	svc := NewTerritoryService(repo, nil)

	var detach *uuid.UUID
	updated, err := svc.Update(context.Background(), hierarchyTenant, UpdateTerritoryInput{
		ID:       usa.ID(),
		ParentID: &detach,
	})
	require.NoError(t, err)
	require.Nil(t, updated.ParentID())
}

func TestUpdateTerritory_NotFound(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)

	_, err := svc.Update(context.Background(), testTenant, UpdateTerritoryInput{
		ID: uuid.MustParse("99999999-9999-9999-9999-999999999999"),
	})
	requireServiceError(t, err, http.StatusNotFound, "TERRITORY_NOT_FOUND")
}

func TestDeleteTerritory_NotFound(t *testing.T) {
	svc := NewTerritoryService(newMemTerritoryRepo(), nil)

	err := svc.Delete(context.Background(), testTenant, uuid.MustParse("99999999-9999-9999-9999-999999999999"))
	requireServiceError(t, err, http.StatusNotFound, "TERRITORY_NOT_FOUND")
}

func TestExportGeoJSON(t *testing.T) {
	repo := newMemTerritoryRepo()
	svc := NewTerritoryService(repo, nil)

	withBounds, err := svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name:       "US West",
		Code:       "US-WEST",
		Type:       territory.TypeGeographic,
		Boundaries: []byte(`{"type":"Polygon","coordinates":[]}`),
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), testTenant, CreateTerritoryInput{
		Name: "Enterprise",
		Code: "ENT",
		Type: territory.TypeAccountBased,
	})
	require.NoError(t, err)

	fc, err := svc.ExportGeoJSON(context.Background(), testTenant, nil)
	require.NoError(t, err)
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	for _, f := range fc.Features {
		require.Equal(t, "Feature", f.Type)
		if f.Properties["id"] == withBounds.ID() {
			require.JSONEq(t, `{"type":"Polygon","coordinates":[]}`, string(f.Geometry))
		} else {
			require.Equal(t, "null", string(f.Geometry))
		}
	}
}
