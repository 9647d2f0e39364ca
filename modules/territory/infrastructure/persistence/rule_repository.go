package persistence

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/pkg/composables"
)

const ruleColumns = `
	id,
	tenant_id,
	territory_id,
	rule_type,
	field_name,
	operator,
	value,
	priority,
	is_active,
	created_at,
	updated_at`

type RuleRepository struct{}

func NewRuleRepository() territory.RuleRepository {
	return &RuleRepository{}
}

func (r *RuleRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Rule{}, err
	}

	row := tx.QueryRow(ctx, `
SELECT `+ruleColumns+`
FROM territory_rules
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(id))
	out, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	if err != nil {
		return territory.Rule{}, gerrors.Wrap(err, "get territory rule")
	}
	return out, nil
}

func (r *RuleRepository) GetByTerritory(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) ([]territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+ruleColumns+`
FROM territory_rules
WHERE tenant_id = $1 AND territory_id = $2
ORDER BY priority ASC, created_at ASC
`, pgUUID(tenantID), pgUUID(territoryID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list territory rules")
	}
	defer rows.Close()

	return scanRules(rows)
}

func (r *RuleRepository) GetAll(ctx context.Context, tenantID uuid.UUID) ([]territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+ruleColumns+`
FROM territory_rules
WHERE tenant_id = $1
ORDER BY priority ASC, created_at ASC
`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list all rules")
	}
	defer rows.Close()

	return scanRules(rows)
}

func (r *RuleRepository) Create(ctx context.Context, rule territory.Rule) (territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Rule{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO territory_rules (
	tenant_id, territory_id, rule_type, field_name, operator, value, priority, is_active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+ruleColumns+`
`,
		pgUUID(rule.TenantID()),
		pgUUID(rule.TerritoryID()),
		string(rule.RuleType()),
		rule.FieldName(),
		string(rule.Operator()),
		rawOrNil(rule.RawValue()),
		rule.Priority(),
		rule.IsActive(),
	)
	out, err := scanRule(row)
	if err != nil {
		return territory.Rule{}, err
	}
	return out, nil
}

func (r *RuleRepository) Update(ctx context.Context, rule territory.Rule) (territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Rule{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE territory_rules SET
	rule_type = $3,
	field_name = $4,
	operator = $5,
	value = $6,
	priority = $7,
	is_active = $8,
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING `+ruleColumns+`
`,
		pgUUID(rule.TenantID()),
		pgUUID(rule.ID()),
		string(rule.RuleType()),
		rule.FieldName(),
		string(rule.Operator()),
		rawOrNil(rule.RawValue()),
		rule.Priority(),
		rule.IsActive(),
	)
	out, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	if err != nil {
		return territory.Rule{}, err
	}
	return out, nil
}

func (r *RuleRepository) SetActive(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, active bool) (territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Rule{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE territory_rules SET is_active = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING `+ruleColumns+`
`, pgUUID(tenantID), pgUUID(id), active)
	out, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	if err != nil {
		return territory.Rule{}, err
	}
	return out, nil
}

func (r *RuleRepository) SetPriority(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, priority int) (territory.Rule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return territory.Rule{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE territory_rules SET priority = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING `+ruleColumns+`
`, pgUUID(tenantID), pgUUID(id), priority)
	out, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return territory.Rule{}, territory.ErrRuleNotFound
	}
	if err != nil {
		return territory.Rule{}, err
	}
	return out, nil
}

func (r *RuleRepository) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM territory_rules WHERE tenant_id = $1 AND id = $2`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return gerrors.Wrap(err, "delete territory rule")
	}
	if tag.RowsAffected() == 0 {
		return territory.ErrRuleNotFound
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]territory.Rule, error) {
	out := make([]territory.Rule, 0, 32)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanRule(row pgx.Row) (territory.Rule, error) {
	var (
		id          pgtype.UUID
		tenantID    pgtype.UUID
		territoryID pgtype.UUID
		ruleType    string
		fieldName   string
		operator    string
		rawValue    []byte
		priority    int
		isActive    bool
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(
		&id, &tenantID, &territoryID, &ruleType, &fieldName, &operator,
		&rawValue, &priority, &isActive, &createdAt, &updatedAt,
	); err != nil {
		return territory.Rule{}, err
	}

	return territory.HydrateRule(
		uuid.UUID(id.Bytes),
		uuid.UUID(tenantID.Bytes),
		uuid.UUID(territoryID.Bytes),
		territory.RuleType(ruleType),
		fieldName,
		territory.Operator(operator),
		json.RawMessage(rawValue),
		priority,
		isActive,
		createdAt,
		updatedAt,
	), nil
}
