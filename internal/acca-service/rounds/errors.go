package rounds

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrWrongPhase    = errors.New("operation not allowed in current phase")
	ErrPrecondition  = errors.New("transition precondition not met")
	ErrQuotaExceeded = errors.New("submission quota exceeded")
	ErrNotAdmin      = errors.New("admin role required")
	ErrNotMember     = errors.New("caller is not a member of the group")
	ErrInvalidInput  = errors.New("invalid input")
)
