package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy of the identity core.
// Every workflow error wraps exactly one of these so callers can map it
// to a transport status with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrTxAborted  = errors.New("transaction aborted")
)

// ErrMissingDepartment signals that a department comparison was required
// but the target has no resolvable department. It is distinct from a
// plain denial so callers can tell a data problem from a policy decision.
var ErrMissingDepartment = fmt.Errorf("%w: target has no resolvable department", ErrValidation)

// ErrUnknownRole aborts the deletion cascade when the target carries a
// role tag no cleanup routine recognizes.
var ErrUnknownRole = errors.New("unknown role")

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
