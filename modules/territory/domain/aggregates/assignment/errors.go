package assignment

import "github.com/iota-uz/territory/pkg/serrors"

var ErrNotFound = serrors.NewError("ASSIGNMENT_NOT_FOUND", "no current assignment", "Assignment.Errors.NotFound")
