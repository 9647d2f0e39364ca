package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/services"
	"github.com/iota-uz/territory/pkg/application"
	"github.com/iota-uz/territory/pkg/configuration"
	"github.com/iota-uz/territory/pkg/constants"
	"github.com/iota-uz/territory/pkg/httpapi"
	"github.com/iota-uz/territory/pkg/middleware"
)

type TerritoryAPIController struct {
	app         application.Application
	territories *services.TerritoryService
	rules       *services.RuleService
	hierarchy   *services.HierarchyService
	apiPrefix   string
}

func NewTerritoryAPIController(app application.Application) application.Controller {
	return &TerritoryAPIController{
		app:         app,
		territories: app.Service(services.TerritoryService{}).(*services.TerritoryService),
		rules:       app.Service(services.RuleService{}).(*services.RuleService),
		hierarchy:   app.Service(services.HierarchyService{}).(*services.HierarchyService),
		apiPrefix:   "/territory/api",
	}
}

func (c *TerritoryAPIController) Key() string {
	return c.apiPrefix
}

func (c *TerritoryAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.ProvideTenant())

	api.HandleFunc("/territories", c.List).Methods(http.MethodGet)
	api.HandleFunc("/territories", c.Create).Methods(http.MethodPost)
	api.HandleFunc("/territories.geojson", c.ExportGeoJSON).Methods(http.MethodGet)
	api.HandleFunc("/territories/{id}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/territories/{id}", c.Update).Methods(http.MethodPatch)
	api.HandleFunc("/territories/{id}", c.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/territories/{id}/assignable-parents", c.AssignableParents).Methods(http.MethodGet)

	api.HandleFunc("/territories/{id}/rules", c.ListRules).Methods(http.MethodGet)
	api.HandleFunc("/territories/{id}/rules", c.CreateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}", c.UpdateRule).Methods(http.MethodPatch)
	api.HandleFunc("/rules/{id}", c.DeleteRule).Methods(http.MethodDelete)
	api.HandleFunc("/rules/{id}:toggle", c.ToggleRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}:reorder", c.ReorderRule).Methods(http.MethodPost)
	api.HandleFunc("/rules:reorder", c.BulkReorderRules).Methods(http.MethodPost)
}

type territoryResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	ParentID    *string         `json:"parent_id"`
	OwnerUserID *int64          `json:"owner_user_id"`
	Boundaries  json.RawMessage `json:"boundaries,omitempty"`
	SortOrder   int             `json:"sort_order"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func toTerritoryResponse(t territory.Territory) territoryResponse {
	var parentID *string
	if t.ParentID() != nil {
		s := t.ParentID().String()
		parentID = &s
	}
	return territoryResponse{
		ID:          t.ID().String(),
		Name:        t.Name(),
		Code:        t.Code(),
		Type:        string(t.Type()),
		Status:      string(t.Status()),
		Description: t.Description(),
		ParentID:    parentID,
		OwnerUserID: t.OwnerUserID(),
		Boundaries:  t.Boundaries(),
		SortOrder:   t.SortOrder(),
		CreatedAt:   t.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt().UTC().Format(time.RFC3339),
	}
}

type ruleResponse struct {
	ID          string          `json:"id"`
	TerritoryID string          `json:"territory_id"`
	RuleType    string          `json:"rule_type"`
	FieldName   string          `json:"field_name"`
	Operator    string          `json:"operator"`
	Value       json.RawMessage `json:"value,omitempty"`
	Priority    int             `json:"priority"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func toRuleResponse(rule territory.Rule) ruleResponse {
	return ruleResponse{
		ID:          rule.ID().String(),
		TerritoryID: rule.TerritoryID().String(),
		RuleType:    string(rule.RuleType()),
		FieldName:   rule.FieldName(),
		Operator:    string(rule.Operator()),
		Value:       rule.RawValue(),
		Priority:    rule.Priority(),
		IsActive:    rule.IsActive(),
		CreatedAt:   rule.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:   rule.UpdatedAt().UTC().Format(time.RFC3339),
	}
}

func findParamsFromQuery(r *http.Request) *territory.FindParams {
	conf := configuration.Use()
	q := r.URL.Query()

	limit := conf.PageSize
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = min(v, conf.MaxPageSize)
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			offset = v
		}
	}

	return &territory.FindParams{
		Q:      q.Get("q"),
		Type:   territory.Type(q.Get("type")),
		Status: territory.Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
}

func (c *TerritoryAPIController) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	territories, total, err := c.territories.GetPaginated(r.Context(), tenantID, findParamsFromQuery(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]territoryResponse, 0, len(territories))
	for _, t := range territories {
		items = append(items, toTerritoryResponse(t))
	}
	type listResponse struct {
		Items []territoryResponse `json:"items"`
		Total int64               `json:"total"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

type createTerritoryRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Code        string          `json:"code" validate:"required,max=64"`
	Type        string          `json:"type" validate:"required,oneof=geographic account_based"`
	Status      string          `json:"status" validate:"omitempty,oneof=active inactive"`
	Description string          `json:"description"`
	ParentID    *uuid.UUID      `json:"parent_id"`
	OwnerUserID *int64          `json:"owner_user_id"`
	Boundaries  json.RawMessage `json:"boundaries"`
	SortOrder   int             `json:"sort_order" validate:"gte=0"`
}

func (c *TerritoryAPIController) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req createTerritoryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	created, err := c.territories.Create(r.Context(), tenantID, services.CreateTerritoryInput{
		Name:        req.Name,
		Code:        req.Code,
		Type:        territory.Type(req.Type),
		Status:      territory.Status(req.Status),
		Description: req.Description,
		ParentID:    req.ParentID,
		OwnerUserID: req.OwnerUserID,
		Boundaries:  req.Boundaries,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toTerritoryResponse(created))
}

func (c *TerritoryAPIController) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	t, err := c.territories.GetByID(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toTerritoryResponse(t))
}

type updateTerritoryRequest struct {
	Name        *string         `json:"name" validate:"omitempty,max=255"`
	Code        *string         `json:"code" validate:"omitempty,max=64"`
	Type        *string         `json:"type" validate:"omitempty,oneof=geographic account_based"`
	Status      *string         `json:"status" validate:"omitempty,oneof=active inactive"`
	Description *string         `json:"description"`
	ParentID    optionalUUID    `json:"parent_id"`
	OwnerUserID optionalInt64   `json:"owner_user_id"`
	Boundaries  json.RawMessage `json:"boundaries"`
	SortOrder   *int            `json:"sort_order" validate:"omitempty,gte=0"`
}

// optionalUUID distinguishes an absent field from an explicit null; null
// detaches the parent while absence leaves it untouched.
type optionalUUID struct {
	Set   bool
	Value *uuid.UUID
}

func (o *optionalUUID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

type optionalInt64 struct {
	Set   bool
	Value *int64
}

func (o *optionalInt64) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (c *TerritoryAPIController) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateTerritoryRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	in := services.UpdateTerritoryInput{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Boundaries:  req.Boundaries,
		SortOrder:   req.SortOrder,
	}
	if req.Code != nil {
		in.Code = req.Code
	}
	if req.Type != nil {
		t := territory.Type(*req.Type)
		in.Type = &t
	}
	if req.Status != nil {
		s := territory.Status(*req.Status)
		in.Status = &s
	}
	if req.ParentID.Set {
		in.ParentID = &req.ParentID.Value
	}
	if req.OwnerUserID.Set {
		in.OwnerUserID = &req.OwnerUserID.Value
	}

	updated, err := c.territories.Update(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toTerritoryResponse(updated))
}

func (c *TerritoryAPIController) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := c.territories.Delete(r.Context(), tenantID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *TerritoryAPIController) ExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	collection, err := c.territories.ExportGeoJSON(r.Context(), tenantID, findParamsFromQuery(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(collection)
}

func (c *TerritoryAPIController) AssignableParents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	parents, err := c.hierarchy.AssignableParents(r.Context(), tenantID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ids := make([]string, 0, len(parents))
	for parentID := range parents {
		ids = append(ids, parentID.String())
	}
	type parentsResponse struct {
		IDs []string `json:"ids"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, parentsResponse{IDs: ids})
}

func (c *TerritoryAPIController) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	territoryID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	rules, err := c.rules.GetByTerritory(r.Context(), tenantID, territoryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	type listResponse struct {
		Items []ruleResponse `json:"items"`
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, listResponse{Items: items})
}

type createRuleRequest struct {
	RuleType  string          `json:"rule_type" validate:"required,oneof=geographic industry account_size custom"`
	FieldName string          `json:"field_name" validate:"required,max=128"`
	Operator  string          `json:"operator" validate:"required"`
	Value     json.RawMessage `json:"value"`
	Priority  int             `json:"priority" validate:"gte=0"`
	IsActive  *bool           `json:"is_active"`
}

func (c *TerritoryAPIController) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	territoryID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req createRuleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	created, err := c.rules.Create(r.Context(), tenantID, services.CreateRuleInput{
		TerritoryID: territoryID,
		RuleType:    territory.RuleType(req.RuleType),
		FieldName:   req.FieldName,
		Operator:    territory.Operator(req.Operator),
		Value:       req.Value,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toRuleResponse(created))
}

type updateRuleRequest struct {
	RuleType  *string         `json:"rule_type" validate:"omitempty,oneof=geographic industry account_size custom"`
	FieldName *string         `json:"field_name" validate:"omitempty,max=128"`
	Operator  *string         `json:"operator"`
	Value     json.RawMessage `json:"value"`
	Priority  *int            `json:"priority" validate:"omitempty,gte=0"`
	IsActive  *bool           `json:"is_active"`
}

func (c *TerritoryAPIController) UpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateRuleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	in := services.UpdateRuleInput{
		ID:        id,
		FieldName: req.FieldName,
		Value:     req.Value,
		Priority:  req.Priority,
		IsActive:  req.IsActive,
	}
	if req.RuleType != nil {
		rt := territory.RuleType(*req.RuleType)
		in.RuleType = &rt
	}
	if req.Operator != nil {
		op := territory.Operator(*req.Operator)
		in.Operator = &op
	}

	updated, err := c.rules.Update(r.Context(), tenantID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (c *TerritoryAPIController) DeleteRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := c.rules.Delete(r.Context(), tenantID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleRuleRequest struct {
	IsActive bool `json:"is_active"`
}

func (c *TerritoryAPIController) ToggleRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req toggleRuleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}

	updated, err := c.rules.Toggle(r.Context(), tenantID, id, req.IsActive)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toRuleResponse(updated))
}

type reorderRuleRequest struct {
	Priority int `json:"priority" validate:"gte=0"`
}

func (c *TerritoryAPIController) ReorderRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req reorderRuleRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	updated, err := c.rules.Reorder(r.Context(), tenantID, id, req.Priority)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toRuleResponse(updated))
}

type bulkReorderRequest struct {
	Priorities []struct {
		ID       uuid.UUID `json:"id"`
		Priority int       `json:"priority" validate:"gte=0"`
	} `json:"priorities" validate:"required,min=1,dive"`
}

func (c *TerritoryAPIController) BulkReorderRules(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req bulkReorderRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_BODY", "invalid json body", nil)
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	priorities := make([]services.RulePriority, 0, len(req.Priorities))
	for _, p := range req.Priorities {
		priorities = append(priorities, services.RulePriority{ID: p.ID, Priority: p.Priority})
	}
	if err := c.rules.BulkReorder(r.Context(), tenantID, priorities); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateRequest(w http.ResponseWriter, req any) bool {
	err := constants.Validate.Struct(req)
	if err == nil {
		return true
	}
	fields := map[string]string{}
	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, fieldErr := range validatorErrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
	}
	_ = httpapi.WriteValidationErrors(w, fields)
	return false
}
