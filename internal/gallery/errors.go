package gallery

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded  = errors.New("gallery capacity exceeded")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrInvalidIdentity   = errors.New("invalid identity")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrVersionConflict   = errors.New("record version conflict")
	ErrClosed            = errors.New("gallery is closed")
)

// CapacityError is returned when a write would push the number of enabled
// records above Limit. errors.Is(err, ErrCapacityExceeded) reports true.
type CapacityError struct {
	Limit     int
	Enabled   int
	Requested int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("gallery capacity exceeded: limit %d, %d enabled, %d requested", e.Limit, e.Enabled, e.Requested)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
