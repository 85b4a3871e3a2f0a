package autodi

import (
	"errors"
	"fmt"
)

var (
	ErrArgumentNil      = errors.New("argument cannot be nil")
	ErrConflictingScope = errors.New("a lifetime scope provider and a configuration action cannot both be set")
	ErrNoUnitOfWork     = errors.New("no unit of work in context, is mvc.UnitOfWorkMiddleware installed?")
)

// ArgumentNilError names the constructor parameter that was nil.
type ArgumentNilError struct {
	ParamName string
}

func (e *ArgumentNilError) Error() string {
	return fmt.Sprintf("%s: %s", e.ParamName, ErrArgumentNil)
}

func (e *ArgumentNilError) Is(target error) bool {
	return target == ErrArgumentNil
}

func argumentNil(name string) error {
	return &ArgumentNilError{ParamName: name}
}
