package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidUser         = errors.New("invalid user")
	ErrInvalidProfessional = errors.New("invalid professional")
)

// TransitionError reports a status change that is not in the transition table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

func IsIllegalTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
