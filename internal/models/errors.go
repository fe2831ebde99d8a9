package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a rejected call caused by bad input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState marks a mutation attempted on an order in a terminal state
	ErrInvalidState = errors.New("invalid state")
)

// ArgumentError builds an error wrapping ErrInvalidArgument
func ArgumentError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// StateError reports which terminal status blocked a transition
type StateError struct {
	Status  OrderStatus
	Message string
}

func (e *StateError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrInvalidState) match every StateError
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

var (
	ErrAlreadyFilled    = &StateError{Status: StatusFilled, Message: "order is already filled"}
	ErrCancelFilled     = &StateError{Status: StatusFilled, Message: "cannot cancel a filled order"}
	ErrAlreadyCancelled = &StateError{Status: StatusCancelled, Message: "order is already cancelled"}
	ErrFillCancelled    = &StateError{Status: StatusCancelled, Message: "cannot fill a cancelled order"}
)
