package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrForbidden             = errors.New("forbidden")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrUnauthenticated reports a missing, expired or revoked session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCode reports that no league matches the invite code.
	ErrInvalidCode = errors.New("invalid league code")
	// ErrAlreadyMember reports that the user already belongs to the league.
	ErrAlreadyMember = errors.New("already a member of this league")
	// ErrServiceError classifies failures reported by the data service. See ServiceError.
	ErrServiceError = errors.New("service error")
)

// ServiceError carries a data-service failure whose message is shown to the user unchanged.
type ServiceError struct {
	Op  string
	Err error
}

func newServiceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ServiceError
	if errors.As(err, &existing) {
		return err
	}
	return &ServiceError{Op: op, Err: err}
}

func (e *ServiceError) Error() string {
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceError
}
