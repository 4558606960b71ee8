// Package apperr holds the error kinds every service reports. Domain errors wrap
// one of these so the HTTP layer can map them with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)

// Kind returns the taxonomy error err belongs to, or nil when it is not one of ours.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrUnauthorized, ErrForbidden, ErrConflict, ErrInvalidTransition, ErrValidation} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
