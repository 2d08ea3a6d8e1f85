package domain

import "errors"

var (
	// ErrModuleNotFound is returned when a module id does not resolve, or
	// resolves to something other than a quiz module.
	ErrModuleNotFound = errors.New("module not found")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrUserNotFound indicates a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrPersistence wraps storage failures during the atomic attempt+grade
	// write. The whole submission aborts; callers may retry, knowing a retry
	// creates a fresh attempt.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError rejects a malformed submission before scoring runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
