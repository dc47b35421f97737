package services

import "errors"

var (
	// ErrNotFound indicates the project, file or payment doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller does not own the project.
	ErrForbidden = errors.New("forbidden")
	// ErrAccessExpired indicates the project's access window has closed.
	ErrAccessExpired = errors.New("project access window expired")
	// ErrInvalidTransition indicates the action is not allowed in the current status,
	// or another writer changed the status first.
	ErrInvalidTransition = errors.New("action not allowed in current project status")
	ErrDuplicate         = errors.New("duplicate request")
	// ErrPaymentRequired indicates a revision was requested without a completed payment.
	ErrPaymentRequired = errors.New("payment required")
	// ErrPaymentMismatch indicates payment metadata disagrees with the stored records.
	ErrPaymentMismatch      = errors.New("payment does not match records")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrAllowanceExceeded    = errors.New("project allowance for this period exhausted")
	ErrInvalidInput         = errors.New("invalid input")
)
