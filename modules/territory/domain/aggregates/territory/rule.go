package territory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RuleType string

const (
	RuleTypeGeographic  RuleType = "geographic"
	RuleTypeIndustry    RuleType = "industry"
	RuleTypeAccountSize RuleType = "account_size"
	RuleTypeCustom      RuleType = "custom"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeGeographic, RuleTypeIndustry, RuleTypeAccountSize, RuleTypeCustom:
		return true
	}
	return false
}

type Operator string

const (
	OpEquals         Operator = "="
	OpNotEquals      Operator = "!="
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpIsNull         Operator = "is_null"
	OpIsNotNull      Operator = "is_not_null"
	OpBetween        Operator = "between"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual,
		OpIn, OpNotIn,
		OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpIsNull, OpIsNotNull,
		OpBetween:
		return true
	}
	return false
}

// ValueShape is the wire shape the operator expects in Rule.RawValue.
type ValueShape int

const (
	ShapeNone ValueShape = iota
	ShapeScalar
	ShapeList
	ShapeRange
)

func (o Operator) Shape() ValueShape {
	switch o {
	case OpIsNull, OpIsNotNull:
		return ShapeNone
	case OpIn, OpNotIn:
		return ShapeList
	case OpBetween:
		return ShapeRange
	default:
		return ShapeScalar
	}
}

// Rule is a single field/operator/value condition scoped to one territory.
// Rules within a territory are OR-combined: each one is an independent
// qualifying condition. The raw JSON value is kept as stored; decoding
// happens at evaluation time so a malformed value degrades to "never
// matches" instead of failing the whole rule set.
type Rule struct {
	id          uuid.UUID
	tenantID    uuid.UUID
	territoryID uuid.UUID
	ruleType    RuleType
	fieldName   string
	operator    Operator
	rawValue    json.RawMessage
	priority    int
	isActive    bool
	createdAt   time.Time
	updatedAt   time.Time
}

func NewRule(tenantID, territoryID uuid.UUID, ruleType RuleType, fieldName string, operator Operator, rawValue json.RawMessage, priority int) Rule {
	return Rule{
		tenantID:    tenantID,
		territoryID: territoryID,
		ruleType:    ruleType,
		fieldName:   strings.TrimSpace(fieldName),
		operator:    operator,
		rawValue:    rawValue,
		priority:    priority,
		isActive:    true,
	}
}

func HydrateRule(
	id uuid.UUID,
	tenantID uuid.UUID,
	territoryID uuid.UUID,
	ruleType RuleType,
	fieldName string,
	operator Operator,
	rawValue json.RawMessage,
	priority int,
	isActive bool,
	createdAt time.Time,
	updatedAt time.Time,
) Rule {
	return Rule{
		id:          id,
		tenantID:    tenantID,
		territoryID: territoryID,
		ruleType:    ruleType,
		fieldName:   strings.TrimSpace(fieldName),
		operator:    operator,
		rawValue:    rawValue,
		priority:    priority,
		isActive:    isActive,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (r Rule) ID() uuid.UUID             { return r.id }
func (r Rule) TenantID() uuid.UUID       { return r.tenantID }
func (r Rule) TerritoryID() uuid.UUID    { return r.territoryID }
func (r Rule) RuleType() RuleType        { return r.ruleType }
func (r Rule) FieldName() string         { return r.fieldName }
func (r Rule) Operator() Operator        { return r.operator }
func (r Rule) RawValue() json.RawMessage { return r.rawValue }
func (r Rule) Priority() int             { return r.priority }
func (r Rule) IsActive() bool            { return r.isActive }
func (r Rule) CreatedAt() time.Time      { return r.createdAt }
func (r Rule) UpdatedAt() time.Time      { return r.updatedAt }
