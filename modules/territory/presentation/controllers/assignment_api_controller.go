package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/assignment"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
	"github.com/iota-uz/territory/modules/territory/services"
	"github.com/iota-uz/territory/pkg/application"
	"github.com/iota-uz/territory/pkg/httpapi"
	"github.com/iota-uz/territory/pkg/middleware"
)

type AssignmentAPIController struct {
	app         application.Application
	assignments *services.AssignmentService
	apiPrefix   string
}

func NewAssignmentAPIController(app application.Application) application.Controller {
	return &AssignmentAPIController{
		app:         app,
		assignments: app.Service(services.AssignmentService{}).(*services.AssignmentService),
		apiPrefix:   "/territory/api/assignments",
	}
}

func (c *AssignmentAPIController) Key() string {
	return c.apiPrefix
}

func (c *AssignmentAPIController) Register(r *mux.Router) {
	api := r.PathPrefix("/territory/api").Subrouter()
	api.Use(middleware.ProvideTenant())

	api.HandleFunc("/assignments", c.Assign).Methods(http.MethodPost)
	api.HandleFunc("/assignments:reassign", c.Reassign).Methods(http.MethodPost)
	api.HandleFunc("/assignments:bulk-reassign", c.BulkReassign).Methods(http.MethodPost)
	api.HandleFunc("/assignments:resolve", c.Resolve).Methods(http.MethodPost)
	api.HandleFunc("/assignments:needs-reassignment", c.NeedsReassignment).Methods(http.MethodGet)
	api.HandleFunc("/assignments/{kind}/{id}", c.CurrentTerritory).Methods(http.MethodGet)
	api.HandleFunc("/assignments/{kind}/{id}", c.Unassign).Methods(http.MethodDelete)
	api.HandleFunc("/assignments/{kind}/{id}/history", c.History).Methods(http.MethodGet)
}

type assignmentResponse struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	TerritoryID string `json:"territory_id"`
	AssignedBy  int64  `json:"assigned_by"`
	AssignedAt  string `json:"assigned_at"`
	Method      string `json:"method"`
}

func toAssignmentResponse(a assignment.Assignment) assignmentResponse {
	return assignmentResponse{
		EntityType:  string(a.Entity().Kind),
		EntityID:    a.Entity().ID.String(),
		TerritoryID: a.TerritoryID().String(),
		AssignedBy:  a.AssignedBy(),
		AssignedAt:  a.AssignedAt().UTC().Format(time.RFC3339),
		Method:      string(a.Method()),
	}
}

type historyEntryResponse struct {
	ID                  string  `json:"id"`
	EntityType          string  `json:"entity_type"`
	EntityID            string  `json:"entity_id"`
	PreviousTerritoryID *string `json:"previous_territory_id"`
	NewTerritoryID      *string `json:"new_territory_id"`
	ActorID             int64   `json:"actor_id"`
	Method              string  `json:"method"`
	OccurredAt          string  `json:"occurred_at"`
}

func toHistoryEntryResponse(entry assignment.HistoryEntry) historyEntryResponse {
	uuidString := func(id *uuid.UUID) *string {
		if id == nil {
			return nil
		}
		s := id.String()
		return &s
	}
	return historyEntryResponse{
		ID:                  entry.ID.String(),
		EntityType:          string(entry.Entity.Kind),
		EntityID:            entry.Entity.ID.String(),
		PreviousTerritoryID: uuidString(entry.PreviousTerritoryID),
		NewTerritoryID:      uuidString(entry.NewTerritoryID),
		ActorID:             entry.ActorID,
		Method:              string(entry.Method),
		OccurredAt:          entry.OccurredAt.UTC().Format(time.RFC3339),
	}
}

type assignRequest struct {
	EntityType        string    `json:"entity_type" validate:"required"`
	EntityID          uuid.UUID `json:"entity_id" validate:"required"`
	TerritoryID       uuid.UUID `json:"territory_id" validate:"required"`
	ActorID           int64     `json:"actor_id" validate:"required"`
	TransferOwnership bool      `json:"transfer_ownership"`
}

func (c *AssignmentAPIController) parseAssignRequest(w http.ResponseWriter, r *http.Request) (services.AssignInput, bool) {
	var req assignRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "invalid json body", nil)
		return services.AssignInput{}, false
	}
	if !validateRequest(w, &req) {
		return services.AssignInput{}, false
	}
	kind, err := assignable.KindFromString(req.EntityType)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "unknown assignable type", nil)
		return services.AssignInput{}, false
	}
	return services.AssignInput{
		Entity:            assignable.Ref{Kind: kind, ID: req.EntityID},
		TerritoryID:       req.TerritoryID,
		ActorID:           req.ActorID,
		TransferOwnership: req.TransferOwnership,
	}, true
}

func (c *AssignmentAPIController) Assign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	in, ok := c.parseAssignRequest(w, r)
	if !ok {
		return
	}

	assigned, err := c.assignments.ManualAssign(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toAssignmentResponse(assigned))
}

func (c *AssignmentAPIController) Reassign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	in, ok := c.parseAssignRequest(w, r)
	if !ok {
		return
	}

	assigned, err := c.assignments.Reassign(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toAssignmentResponse(assigned))
}

type bulkReassignRequest struct {
	TerritoryID uuid.UUID `json:"territory_id" validate:"required"`
	Entities    []struct {
		EntityType string    `json:"entity_type" validate:"required"`
		EntityID   uuid.UUID `json:"entity_id" validate:"required"`
	} `json:"entities" validate:"required,min=1,dive"`
	ActorID           int64 `json:"actor_id" validate:"required"`
	TransferOwnership bool  `json:"transfer_ownership"`
}

func (c *AssignmentAPIController) BulkReassign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req bulkReassignRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	entities := make([]assignable.Ref, 0, len(req.Entities))
	for _, e := range req.Entities {
		kind, err := assignable.KindFromString(e.EntityType)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "unknown assignable type", nil)
			return
		}
		entities = append(entities, assignable.Ref{Kind: kind, ID: e.EntityID})
	}

	result, err := c.assignments.BulkReassign(r.Context(), tenantID, services.BulkReassignInput{
		TerritoryID:       req.TerritoryID,
		Entities:          entities,
		ActorID:           req.ActorID,
		TransferOwnership: req.TransferOwnership,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, result)
}

type resolveRequest struct {
	EntityType string    `json:"entity_type" validate:"required"`
	EntityID   uuid.UUID `json:"entity_id" validate:"required"`
	ActorID    int64     `json:"actor_id" validate:"required"`
}

func (c *AssignmentAPIController) Resolve(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}
	kind, err := assignable.KindFromString(req.EntityType)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_BODY", "unknown assignable type", nil)
		return
	}

	assigned, err := c.assignments.ResolveAutomatic(r.Context(), tenantID, assignable.Ref{Kind: kind, ID: req.EntityID}, req.ActorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if assigned == nil {
		type resolveResponse struct {
			Matched bool `json:"matched"`
		}
		_ = httpapi.WriteJSON(w, http.StatusOK, resolveResponse{Matched: false})
		return
	}
	type resolveResponse struct {
		Matched    bool               `json:"matched"`
		Assignment assignmentResponse `json:"assignment"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resolveResponse{Matched: true, Assignment: toAssignmentResponse(*assigned)})
}

func (c *AssignmentAPIController) CurrentTerritory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	ref, ok := pathRef(w, r)
	if !ok {
		return
	}

	t, err := c.assignments.CurrentTerritory(r.Context(), tenantID, ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toTerritoryResponse(t))
}

func (c *AssignmentAPIController) Unassign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	ref, ok := pathRef(w, r)
	if !ok {
		return
	}

	actorID, err := actorIDFromQuery(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_QUERY", "actor_id is required", nil)
		return
	}

	if err := c.assignments.Unassign(r.Context(), tenantID, ref, actorID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AssignmentAPIController) History(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	ref, ok := pathRef(w, r)
	if !ok {
		return
	}

	entries, err := c.assignments.History(r.Context(), tenantID, ref)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]historyEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toHistoryEntryResponse(entry))
	}
	type listResponse struct {
		Items []historyEntryResponse `json:"items"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, listResponse{Items: items})
}

func (c *AssignmentAPIController) NeedsReassignment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	dangling, err := c.assignments.NeedsReassignment(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]assignmentResponse, 0, len(dangling))
	for _, a := range dangling {
		items = append(items, toAssignmentResponse(a))
	}
	type listResponse struct {
		Items []assignmentResponse `json:"items"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, listResponse{Items: items})
}
