package members

import "errors"

// Validation errors: the request itself is malformed.
var (
	ErrInvalidInput         = errors.New("members: invalid input")
	ErrReasonRequired       = errors.New("members: freeze reason is required")
	ErrInvalidAmount        = errors.New("members: amount must be positive")
	ErrInvalidPaymentMethod = errors.New("members: payment method must be cash or debt")
	ErrInvalidCount         = errors.New("members: session count must be positive")
)

// Precondition errors: the request is valid but the member's state does not
// allow it.
var (
	ErrFrozen          = errors.New("members: member is frozen")
	ErrAlreadyFrozen   = errors.New("members: member is already frozen")
	ErrNotFrozen       = errors.New("members: member is not frozen")
	ErrNoSessionsLeft  = errors.New("members: no sessions left")
	ErrCheckInDenied   = errors.New("members: check-in not allowed")
	ErrNoDebt          = errors.New("members: member has no debt")
	ErrWrongPlanType   = errors.New("members: operation does not apply to this plan type")
	ErrNoPlan          = errors.New("members: member has no plan")
	ErrPlanUnavailable = errors.New("members: plan is not available")
)

var (
	ErrNotFound        = errors.New("members: not found")
	ErrVersionConflict = errors.New("members: member was modified concurrently")
)

// IsValidation reports whether err comes from bad input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidCount)
}

// IsPrecondition reports whether err is a state conflict the caller can
// resolve by re-reading the member.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrFrozen) ||
		errors.Is(err, ErrAlreadyFrozen) ||
		errors.Is(err, ErrNotFrozen) ||
		errors.Is(err, ErrNoSessionsLeft) ||
		errors.Is(err, ErrCheckInDenied) ||
		errors.Is(err, ErrNoDebt) ||
		errors.Is(err, ErrWrongPlanType) ||
		errors.Is(err, ErrNoPlan) ||
		errors.Is(err, ErrPlanUnavailable) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrVersionConflict)
}

var (
	ErrDuplicateCode = errors.New("members: code already in use")
	ErrDuplicateID   = errors.New("members: id already exists")
)
