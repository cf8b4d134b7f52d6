package ot

import (
	"errors"
	"fmt"
)

var (
	// ErrCompose is returned when two operations do not chain: the second one
	// expects a length or content the first one does not produce.
	ErrCompose = errors.New("ot: compose")

	// ErrTransform is returned when two operations were not built against the
	// same state. The replica has diverged and must resynchronize.
	ErrTransform = errors.New("ot: transform")

	// ErrApply is returned when a target is not in the state an operation
	// was built against.
	ErrApply = errors.New("ot: apply")

	// ErrInvalidUse is the panic value for composing or transforming the
	// identity operation.
	ErrInvalidUse = errors.New("ot: invalid use of identity operation")
)

func composeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCompose, fmt.Sprintf(format, args...))
}

func transformErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransform, fmt.Sprintf(format, args...))
}

func applyErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrApply, fmt.Sprintf(format, args...))
}
