package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/pkg/composables"
)

const territoryColumns = `
	id,
	tenant_id,
	name,
	code,
	type,
	status,
	description,
	parent_id,
	owner_user_id,
	boundaries,
	sort_order,
	created_at,
	updated_at`

type TerritoryRepository struct{}

func NewTerritoryRepository() territory.Repository {
	return &TerritoryRepository{}
}

func (r *TerritoryRepository) GetPaginated(ctx context.Context, tenantID uuid.UUID, params *territory.FindParams) ([]territory.Territory, int64, error) {
	if params == nil {
		params = &territory.FindParams{}
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"tenant_id = $1"}
	args := []any{pgUUID(tenantID)}
	if q := strings.TrimSpace(params.Q); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, "(name ILIKE $2 OR code ILIKE $2)")
	}
	if params.Type != "" {
		args = append(args, string(params.Type))
		where = append(where, "type = $"+strconv.Itoa(len(args)))
	}
	if params.Status != "" {
		args = append(args, string(params.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM territories WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, gerrors.Wrap(err, "count territories")
	}

	args = append(args, limit, offset)
	rows, err := tx.Query(ctx, `
SELECT `+territoryColumns+`
FROM territories
WHERE `+whereSQL+`
ORDER BY sort_order ASC, name ASC
LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, gerrors.Wrap(err, "list territories")
	}
	defer rows.Close()

	out, err := scanTerritories(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *TerritoryRepository) GetAll(ctx context.Context, tenantID uuid.UUID) ([]territory.Territory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+territoryColumns+`
FROM territories
WHERE tenant_id = $1
ORDER BY sort_order ASC, name ASC
`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list all territories")
	}
	defer rows.Close()

	return scanTerritories(rows)
}

func (r *TerritoryRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (territory.Territory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Territory{}, err
	}

	row := tx.QueryRow(ctx, `
SELECT `+territoryColumns+`
FROM territories
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(id))
	out, err := scanTerritory(row)
	if err == pgx.ErrNoRows {
		return territory.Territory{}, territory.ErrNotFound
	}
	if err != nil {
		return territory.Territory{}, gerrors.Wrap(err, "get territory")
	}
	return out, nil
}

func (r *TerritoryRepository) GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (territory.Territory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Territory{}, err
	}

	row := tx.QueryRow(ctx, `
SELECT `+territoryColumns+`
FROM territories
WHERE tenant_id = $1 AND code = $2
`, pgUUID(tenantID), strings.ToUpper(strings.TrimSpace(code)))
	out, err := scanTerritory(row)
	if err == pgx.ErrNoRows {
		return territory.Territory{}, territory.ErrNotFound
	}
	if err != nil {
		return territory.Territory{}, gerrors.Wrap(err, "get territory by code")
	}
	return out, nil
}

func (r *TerritoryRepository) Create(ctx context.Context, t territory.Territory) (territory.Territory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Territory{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO territories (
	tenant_id, name, code, type, status, description,
	parent_id, owner_user_id, boundaries, sort_order
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+territoryColumns+`
`,
		pgUUID(t.TenantID()),
		t.Name(),
		t.Code(),
		string(t.Type()),
		string(t.Status()),
		t.Description(),
		pgUUIDPtr(t.ParentID()),
		pgInt8Ptr(t.OwnerUserID()),
		rawOrNil(t.Boundaries()),
		t.SortOrder(),
	)
	out, err := scanTerritory(row)
	if err != nil {
		return territory.Territory{}, err
	}
	return out, nil
}

func (r *TerritoryRepository) Update(ctx context.Context, t territory.Territory) (territory.Territory, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Territory{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE territories SET
	name = $3,
	code = $4,
	type = $5,
	status = $6,
	description = $7,
	parent_id = $8,
	owner_user_id = $9,
	boundaries = $10,
	sort_order = $11,
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING `+territoryColumns+`
`,
		pgUUID(t.TenantID()),
		pgUUID(t.ID()),
		t.Name(),
		t.Code(),
		string(t.Type()),
		string(t.Status()),
		t.Description(),
		pgUUIDPtr(t.ParentID()),
		pgInt8Ptr(t.OwnerUserID()),
		rawOrNil(t.Boundaries()),
		t.SortOrder(),
	)
	out, err := scanTerritory(row)
	if err == pgx.ErrNoRows {
		return territory.Territory{}, territory.ErrNotFound
	}
	if err != nil {
		return territory.Territory{}, err
	}
	return out, nil
}

// Delete removes the territory row. Children keep their parent pointer via
// ON DELETE SET NULL; assignments keep pointing at the gone id and surface
// through ListDangling.
func (r *TerritoryRepository) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM territories WHERE tenant_id = $1 AND id = $2`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return gerrors.Wrap(err, "delete territory")
	}
	if tag.RowsAffected() == 0 {
		return territory.ErrNotFound
	}
	return nil
}

func scanTerritories(rows pgx.Rows) ([]territory.Territory, error) {
	out := make([]territory.Territory, 0, 32)
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanTerritory(row pgx.Row) (territory.Territory, error) {
	var (
		id          pgtype.UUID
		tenantID    pgtype.UUID
		name        string
		code        string
		typ         string
		status      string
		description string
		parentID    pgtype.UUID
		ownerUserID pgtype.Int8
		boundaries  []byte
		sortOrder   int
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(
		&id, &tenantID, &name, &code, &typ, &status, &description,
		&parentID, &ownerUserID, &boundaries, &sortOrder, &createdAt, &updatedAt,
	); err != nil {
		return territory.Territory{}, err
	}

	return territory.Hydrate(
		uuid.UUID(id.Bytes),
		uuid.UUID(tenantID.Bytes),
		name,
		code,
		territory.Type(typ),
		territory.Status(status),
		description,
		uuidPtr(parentID),
		int64Ptr(ownerUserID),
		json.RawMessage(boundaries),
		sortOrder,
		createdAt,
		updatedAt,
	), nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
