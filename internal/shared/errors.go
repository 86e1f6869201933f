package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrAuthorization indicates the caller lacks the required role.
	ErrAuthorization = errors.New("not authorized")
	// ErrCapacity indicates a meter value above the pump capacity.
	ErrCapacity = errors.New("meter value exceeds pump capacity")
	// ErrConflict indicates a duplicate reading for the same pump/date/type.
	ErrConflict = errors.New("reading already exists")
	// ErrWindowExpired indicates an edit attempted after the cutoff.
	ErrWindowExpired = errors.New("modification window expired")
	// ErrState indicates an operation invalid for the record's current state.
	ErrState = errors.New("invalid state")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
