package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/territory/modules/territory/domain/assignable"
	"github.com/iota-uz/territory/modules/territory/services"
	"github.com/iota-uz/territory/pkg/composables"
	"github.com/iota-uz/territory/pkg/httpapi"
)

const maxBodyBytes = 1 << 20

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func requireTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant is missing from request context", nil)
		return uuid.Nil, false
	}
	return tenantID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TERRITORY_INVALID_PATH", name+" is not a valid uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func pathRef(w http.ResponseWriter, r *http.Request) (assignable.Ref, bool) {
	kind, err := assignable.KindFromString(mux.Vars(r)["kind"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "ASSIGNMENT_INVALID_PATH", "unknown assignable type", nil)
		return assignable.Ref{}, false
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return assignable.Ref{}, false
	}
	return assignable.Ref{Kind: kind, ID: id}, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	meta := map[string]string{}
	if requestID := composables.UseRequestID(r.Context()); requestID != "" {
		meta["request_id"] = requestID
	}

	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		_ = httpapi.WriteError(w, svcErr.Status, svcErr.Code, svcErr.Message, meta)
		return
	}

	composables.UseLogger(r.Context()).WithError(err).Error("unhandled service error")
	_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", meta)
}

func actorIDFromQuery(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
}
