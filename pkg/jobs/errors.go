package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration classifies invalid job definitions and construction-time config.
	ErrConfiguration = errors.New("jobs configuration error")
	// ErrValidation classifies payload/input validation failures at dispatch time.
	ErrValidation = errors.New("jobs validation error")
	// ErrNotFound classifies missing logical resources (for example an unknown job id).
	ErrNotFound = errors.New("jobs not found")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("jobs invalid argument")
	// ErrClosed classifies operations on an already closed store or manager.
	ErrClosed = errors.New("jobs closed")
	// ErrUnsupported classifies driver backends that are recognized but not available.
	ErrUnsupported = errors.New("jobs unsupported backend")
)

func jobsError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
