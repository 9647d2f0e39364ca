package territory

import (
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the decoded rule value variant.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueScalar
	ValueList
	ValueRange
)

// Value is the decoded form of Rule.RawValue, shaped by the operator.
// Scalars and list/range elements hold what encoding/json produced for
// them: string, float64, bool or nil.
type Value struct {
	kind   ValueKind
	scalar any
	list   []any
	lo, hi any
}

func NoValue() Value              { return Value{kind: ValueNone} }
func ScalarValue(v any) Value     { return Value{kind: ValueScalar, scalar: v} }
func ListValue(vs []any) Value    { return Value{kind: ValueList, list: vs} }
func RangeValue(lo, hi any) Value { return Value{kind: ValueRange, lo: lo, hi: hi} }

func (v Value) Kind() ValueKind   { return v.kind }
func (v Value) Scalar() any       { return v.scalar }
func (v Value) List() []any       { return v.list }
func (v Value) Range() (any, any) { return v.lo, v.hi }

// ParseValue decodes raw according to the operator's expected shape.
// Presence operators ignore raw entirely. Any shape mismatch is an error;
// callers on the evaluation path treat it as "never matches", callers on
// the write path reject the rule.
func ParseValue(op Operator, raw json.RawMessage) (Value, error) {
	switch op.Shape() {
	case ShapeNone:
		return NoValue(), nil
	case ShapeList:
		var items []any
		if err := decodeStrict(raw, &items); err != nil {
			return Value{}, fmt.Errorf("operator %q expects a JSON array: %w", op, err)
		}
		return ListValue(items), nil
	case ShapeRange:
		var items []any
		if err := decodeStrict(raw, &items); err != nil {
			return Value{}, fmt.Errorf("operator %q expects a JSON array: %w", op, err)
		}
		if len(items) != 2 {
			return Value{}, fmt.Errorf("operator %q requires exactly two bounds, got %d", op, len(items))
		}
		return RangeValue(items[0], items[1]), nil
	default:
		var scalar any
		if err := decodeStrict(raw, &scalar); err != nil {
			return Value{}, fmt.Errorf("operator %q expects a JSON scalar: %w", op, err)
		}
		switch scalar.(type) {
		case map[string]any, []any:
			return Value{}, fmt.Errorf("operator %q expects a JSON scalar, got %T", op, scalar)
		}
		return ScalarValue(scalar), nil
	}
}

func decodeStrict(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("value is empty")
	}
	return json.Unmarshal(raw, out)
}
