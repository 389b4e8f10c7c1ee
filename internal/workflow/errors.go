package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected transition.
type TransitionError struct {
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// LockHeldError is returned when another reviewer holds an active review lease.
type LockHeldError struct {
	Holder    string
	ExpiresAt *time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("review held by %s", e.Holder)
}
