package rent

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks errors caused by bad caller input, raised before any ledger I/O.
	ErrValidation = errors.New("validation error")

	// ErrMissingSigner is returned when a live reclaim is requested without a signing key.
	ErrMissingSigner = errors.New("a signing keypair is required unless dry-run is set")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
