package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrUnknownEvent       = fmt.Errorf("unknown event")
	ErrIdentityRequired   = fmt.Errorf("identity must be attached first")
	ErrNotMember          = fmt.Errorf("connection is not a member of the room")
	ErrConnectionNotFound = fmt.Errorf("connection not found")
	ErrConnectionClosed   = fmt.Errorf("connection closed")
	ErrSlowConsumer       = fmt.Errorf("outbound queue full")
	ErrInvalidPolicy      = fmt.Errorf("unknown slow consumer policy")
	ErrUserNotFound       = fmt.Errorf("user not found")
)

// Is lets callers importing this package skip the standard library one.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
