package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/territory/modules/territory/domain/assignable"
	"github.com/iota-uz/territory/pkg/composables"
)

// AssignableResolver reads lead, organization and person records through a
// uniform query per kind. Typed columns become the entity field map; the
// free-form attributes column fills in anything rules reference beyond the
// fixed schema, with typed columns winning on collision.
type AssignableResolver struct{}

func NewAssignableResolver() assignable.Resolver {
	return &AssignableResolver{}
}

type kindSource struct {
	table   string
	columns []string
}

var kindSources = map[assignable.Kind]kindSource{
	assignable.KindLead: {
		table: "leads",
		columns: []string{
			"title", "status", "source", "country", "state", "city",
			"postal_code", "industry", "annual_revenue", "employee_count",
		},
	},
	assignable.KindOrganization: {
		table: "organizations",
		columns: []string{
			"name", "country", "state", "city", "postal_code", "industry",
			"annual_revenue", "employee_count",
		},
	},
	assignable.KindPerson: {
		table: "persons",
		columns: []string{
			"first_name", "last_name", "email", "country", "state", "city",
			"postal_code", "job_title",
		},
	},
}

func (r *AssignableResolver) Resolve(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref) (assignable.Entity, error) {
	src, ok := kindSources[ref.Kind]
	if !ok {
		return assignable.Entity{}, assignable.ErrEntityNotFound
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignable.Entity{}, err
	}

	sql := `SELECT user_id, attributes`
	for _, c := range src.columns {
		sql += ", " + c
	}
	sql += ` FROM ` + src.table + ` WHERE tenant_id = $1 AND id = $2`

	var (
		userID     pgtype.Int8
		attributes []byte
	)
	scanTargets := []any{&userID, &attributes}
	columnValues := make([]any, len(src.columns))
	for i := range src.columns {
		scanTargets = append(scanTargets, &columnValues[i])
	}

	err = tx.QueryRow(ctx, sql, pgUUID(tenantID), pgUUID(ref.ID)).Scan(scanTargets...)
	if err == pgx.ErrNoRows {
		return assignable.Entity{}, assignable.ErrEntityNotFound
	}
	if err != nil {
		return assignable.Entity{}, gerrors.Wrap(err, "resolve assignable entity")
	}

	fields := make(map[string]any, len(src.columns)+8)
	if len(attributes) > 0 {
		// malformed attribute blobs lose only the blob, not the row
		var extra map[string]any
		if json.Unmarshal(attributes, &extra) == nil {
			for k, v := range extra {
				fields[k] = v
			}
		}
	}
	for i, c := range src.columns {
		if v := normalizeFieldValue(columnValues[i]); v != nil {
			fields[c] = v
		}
	}

	return assignable.Entity{
		Ref:    ref,
		UserID: int64Ptr(userID),
		Fields: fields,
	}, nil
}

func (r *AssignableResolver) TransferOwnership(ctx context.Context, tenantID uuid.UUID, ref assignable.Ref, userID int64) error {
	src, ok := kindSources[ref.Kind]
	if !ok {
		return assignable.ErrEntityNotFound
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE `+src.table+` SET user_id = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(ref.ID), userID)
	if err != nil {
		return gerrors.Wrap(err, "transfer ownership")
	}
	if tag.RowsAffected() == 0 {
		return assignable.ErrEntityNotFound
	}
	return nil
}

// normalizeFieldValue widens driver scan types so rule evaluation sees the
// same shapes JSON decoding produces.
func normalizeFieldValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
