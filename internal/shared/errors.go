package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Operation and batch errors
	ErrNotFound           = fmt.Errorf("not found")
	ErrInvalidState       = fmt.Errorf("invalid state")
	ErrAlreadyProcessed   = fmt.Errorf("batch already processed")
	ErrDuplicateOperation = fmt.Errorf("operation already active for source group")
	ErrNothingPending     = fmt.Errorf("no pending members to invite")

	// Join reconciliation errors (non-fatal)
	ErrNoActiveOperation = fmt.Errorf("no active operation for group")
	ErrNotInvited        = fmt.Errorf("member was not invited")

	// Messaging platform errors
	ErrExternalCall       = fmt.Errorf("messaging platform call failed")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// DuplicateOperationError is returned when a source group already has an active operation.
// It carries the existing operation id so callers can resume monitoring it.
type DuplicateOperationError struct {
	SourceGroupID string
	ExistingID    string
}

func (e *DuplicateOperationError) Error() string {
	return fmt.Sprintf("%v: %s (operation %s)", ErrDuplicateOperation, e.SourceGroupID, e.ExistingID)
}

// Unwrap lets [errors.Is] match [ErrDuplicateOperation].
func (e *DuplicateOperationError) Unwrap() error {
	return ErrDuplicateOperation
}
