package common

import (
	"errors"
	"fmt"
)

// ErrTransient and ErrPermanent classify provider failures. Nothing in the
// request path retries, but the classification is logged and drives the
// circuit breaker in front of HTTP providers.
var (
	ErrTransient = errors.New("transient error")
	ErrPermanent = errors.New("permanent error")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// SendError reports a failed notification send. Err keeps the transient or
// permanent classification reachable through errors.Is.
type SendError struct {
	Role      string
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s to %s: %v", e.Role, e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries the permanent classification.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
