package territory

import "github.com/iota-uz/territory/pkg/serrors"

var (
	ErrNotFound     = serrors.NewError("TERRITORY_NOT_FOUND", "territory not found", "Territory.Errors.NotFound")
	ErrRuleNotFound = serrors.NewError("TERRITORY_RULE_NOT_FOUND", "territory rule not found", "Territory.Errors.RuleNotFound")
)
