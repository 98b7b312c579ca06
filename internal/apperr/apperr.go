// Package apperr holds the small set of sentinel errors shared across
// storage and the connection handler, per SPEC_FULL.md's AMBIENT
// STACK "Error handling" section. The connection handler translates any of
// these (or an unrecognized error) to a 500 response carrying the error's
// Error() text; nothing here ever crosses the wire directly.
package apperr

import "errors"

var (
	// ErrDayClosed means a FILTER (or similar) request named a day that is
	// not a closed day: the open day itself, a later day, or a negative day.
	ErrDayClosed = errors.New("day is not closed")

	// ErrOutOfWindow means a FILTER request named a day older than the
	// retention window, so its data (and file) may already be gone.
	ErrOutOfWindow = errors.New("day is outside the retention window")

	// ErrNotAuthenticated means a request arrived on a connection that has
	// not completed LOGIN yet, for an operation that requires it.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidParameter means a request's parameters failed handler-level
	// validation (out-of-range days, empty product name, oversized filter).
	ErrInvalidParameter = errors.New("invalid parameter")
)
