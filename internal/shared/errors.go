package shared

import "errors"

// Error categories for the core. Domain packages wrap these with
// fmt.Errorf("%w: ...") so HTTP handlers can map any failure to a status
// code with a single errors.Is per category.
var (
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing account, payment, cheque, or period.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the operation contradicts current state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the operation is never permitted on the target.
	ErrForbidden = errors.New("forbidden")
)

// PreconditionError reports a gated operation whose validation suite did not
// pass. Checks holds the full check results for remediation.
type PreconditionError struct {
	Detail string
	Checks any
}

func (e *PreconditionError) Error() string {
	return e.Detail
}
