package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
)

// EvaluateRule evaluates one rule against one raw field value. It is a pure
// predicate: a malformed stored value or a non-comparable field never
// produces an error, only "does not match", so a single bad rule cannot
// block assignment of any entity. Such rules are logged as data-quality
// warnings.
func EvaluateRule(log logrus.FieldLogger, r territory.Rule, fieldValue any, present bool) bool {
	val, err := territory.ParseValue(r.Operator(), r.RawValue())
	if err != nil {
		recordRuleEvalFailure("malformed_value")
		if log != nil {
			log.WithFields(logrus.Fields{
				"rule_id":      r.ID(),
				"territory_id": r.TerritoryID(),
				"field_name":   r.FieldName(),
				"operator":     r.Operator(),
			}).WithError(err).Warn("skipping rule with malformed value")
		}
		return false
	}

	isNull := !present || fieldValue == nil
	switch r.Operator() {
	case territory.OpIsNull:
		return isNull
	case territory.OpIsNotNull:
		return !isNull
	}
	// Every remaining operator needs an actual value to compare.
	if isNull {
		return false
	}

	switch r.Operator() {
	case territory.OpEquals:
		return looseEqual(fieldValue, val.Scalar())
	case territory.OpNotEquals:
		return !looseEqual(fieldValue, val.Scalar())
	case territory.OpGreaterThan:
		cmp, ok := compareOrdered(fieldValue, val.Scalar())
		return ok && cmp > 0
	case territory.OpGreaterOrEqual:
		cmp, ok := compareOrdered(fieldValue, val.Scalar())
		return ok && cmp >= 0
	case territory.OpLessThan:
		cmp, ok := compareOrdered(fieldValue, val.Scalar())
		return ok && cmp < 0
	case territory.OpLessOrEqual:
		cmp, ok := compareOrdered(fieldValue, val.Scalar())
		return ok && cmp <= 0
	case territory.OpIn:
		return containsLoose(val.List(), fieldValue)
	case territory.OpNotIn:
		return !containsLoose(val.List(), fieldValue)
	case territory.OpContains:
		return strings.Contains(coerceString(fieldValue), coerceString(val.Scalar()))
	case territory.OpNotContains:
		return !strings.Contains(coerceString(fieldValue), coerceString(val.Scalar()))
	case territory.OpStartsWith:
		return strings.HasPrefix(coerceString(fieldValue), coerceString(val.Scalar()))
	case territory.OpEndsWith:
		return strings.HasSuffix(coerceString(fieldValue), coerceString(val.Scalar()))
	case territory.OpBetween:
		lo, hi := val.Range()
		cmpLo, okLo := compareOrdered(fieldValue, lo)
		cmpHi, okHi := compareOrdered(fieldValue, hi)
		return okLo && okHi && cmpLo >= 0 && cmpHi <= 0
	}

	recordRuleEvalFailure("unknown_operator")
	if log != nil {
		log.WithFields(logrus.Fields{
			"rule_id":  r.ID(),
			"operator": r.Operator(),
		}).Warn("skipping rule with unknown operator")
	}
	return false
}

// looseEqual normalizes both sides before comparing: values that both parse
// as numbers compare numerically, everything else compares as strings.
func looseEqual(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return coerceString(a) == coerceString(b)
}

func containsLoose(list []any, v any) bool {
	for _, item := range list {
		if looseEqual(v, item) {
			return true
		}
	}
	return false
}

// compareOrdered compares numerically when both sides parse as numbers,
// chronologically when both parse as dates, and reports !ok otherwise.
func compareOrdered(a, b any) (int, bool) {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	ta, aok := toTime(a)
	tb, bok := toTime(b)
	if aok && bok {
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}
