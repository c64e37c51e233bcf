package domain

import "errors"

var (
	ErrSpaceNotFound      = errors.New("parking space not found")
	ErrPreconditionFailed = errors.New("transition precondition failed")
	ErrStoreUnavailable   = errors.New("space store unavailable")
	ErrSinkUnavailable    = errors.New("notification sink unavailable")

	ErrInvalidInput      = errors.New("invalid input")
	ErrPlateRequired     = errors.New("plate required to occupy a reserved space")
	ErrProvisionConflict = errors.New("surplus spaces are not free")
)

// Precondition failures. Each matches both itself and ErrPreconditionFailed.
var (
	ErrNotAvailable    = newPrecondition("not_available", "space is not available")
	ErrNotReserved     = newPrecondition("not_reserved", "space is not reserved")
	ErrPlateMismatch   = newPrecondition("plate_mismatch", "plate does not match reservation")
	ErrSessionMismatch = newPrecondition("session_mismatch", "session does not match current occupancy")
	ErrNotOccupied     = newPrecondition("not_occupied", "space is not occupied")
	ErrNotEligible     = newPrecondition("not_eligible", "space is not eligible for out of service")
	ErrNotOutOfService = newPrecondition("not_out_of_service", "space is not out of service")
)

type preconditionError struct {
	code string
	msg  string
}

func newPrecondition(code, msg string) error {
	return &preconditionError{code: code, msg: msg}
}

func (e *preconditionError) Error() string { return e.msg }

func (e *preconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// PreconditionCode returns the machine-readable code of a precondition failure
// found in err's chain, or "" when there is none.
func PreconditionCode(err error) string {
	var pe *preconditionError
	if errors.As(err, &pe) {
		return pe.code
	}
	return ""
}
