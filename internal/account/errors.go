package account

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the account services. Details are attached with
// fmt.Errorf("%w: ...") so callers match with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("account not found")
	ErrInternal           = errors.New("internal error")
	ErrUnavailable        = errors.New("service unavailable")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
