package services

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, "TERRITORY_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "territories_tenant_id_code_key":
			return newServiceError(http.StatusConflict, "TERRITORY_CODE_CONFLICT", "code already exists", err)
		case "territory_assignments_pkey":
			return newServiceError(http.StatusConflict, "ASSIGNMENT_CONFLICT", "assignment already exists", err)
		}
		return newServiceError(http.StatusConflict, "TERRITORY_CONFLICT", "conflicting write", err)
	case "23503": // foreign_key_violation
		switch pgErr.ConstraintName {
		case "territory_rules_territory_id_fkey":
			return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_NOT_FOUND", "territory not found", err)
		case "territories_parent_id_fkey":
			return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_INVALID_PARENT", "parent territory not found", err)
		}
		return newServiceError(http.StatusUnprocessableEntity, "TERRITORY_INVALID_REFERENCE", "referenced row not found", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(http.StatusConflict, "TERRITORY_WRITE_CONFLICT", "concurrent write conflict, retry", err)
	}
	return err
}

func mapPgError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return mapPgErrorToServiceError(err)
}
