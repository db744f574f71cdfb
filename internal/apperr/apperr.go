// Package apperr defines the typed failures surfaced by the service layer.
// Handlers match on these with errors.As to pick the outward status; nothing
// in the service layer collapses them into generic errors.
package apperr

import "fmt"

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ForbiddenError reports an ownership mismatch.
type ForbiddenError struct {
	Entity string
	ID     int64
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s %d does not belong to the requesting user", e.Entity, e.ID)
}

// InvalidStateError reports an operation not valid from the entity's current
// lifecycle state (e.g. scheduling a batch that is not a draft).
type InvalidStateError struct {
	Entity string
	ID     int64
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in state %q", e.Op, e.Entity, e.ID, e.State)
}

// InvalidTransitionError reports a delivery state machine violation: the
// attempt is already terminal. Callers rely on this to detect
// double-completion bugs, so it is never silently ignored.
type InvalidTransitionError struct {
	AttemptID int64
	From      string
	To        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("delivery attempt %d: invalid transition %s -> %s", e.AttemptID, e.From, e.To)
}

// MissingVariableError reports a template placeholder with no matching
// variable. Rendering fails rather than emitting the literal placeholder.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template variable %q missing", e.Name)
}

// DependencyUnavailableError wraps a failure of a backing dependency (store,
// cache). Surfaced as retryable to callers.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }
