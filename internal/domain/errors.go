package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("ice mail not found")
	ErrDuplicateName  = errors.New("an ice mail with that name already exists")
	ErrInvalidState   = errors.New("operation not allowed in the current status")
	ErrInvalidTrigger = errors.New("trigger date must be in the future")
	ErrInvalidName    = errors.New("name must not be empty")

	// ErrNotActive is returned when deactivating a mail that is not Active.
	// It matches ErrInvalidState as well.
	ErrNotActive = fmt.Errorf("%w: ice mail is not active", ErrInvalidState)
)

// Kind returns the short name of the first domain error found in err's chain,
// or "" if err carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrDuplicateName):
		return "DuplicateName"
	case errors.Is(err, ErrNotActive):
		return "NotActive"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrInvalidTrigger):
		return "InvalidTrigger"
	case errors.Is(err, ErrInvalidName):
		return "InvalidName"
	}
	return ""
}
