package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks errors caused by caller input.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownPartType is returned when a message part carries an unsupported type.
	ErrUnknownPartType = errors.New("unknown message part type")
)

// NotFoundError wraps ErrNotFound with the entity name, e.g. "Version not found".
func NotFoundError(entity string) error {
	return &entityError{msg: entity + " not found", base: ErrNotFound}
}

// ValidationError wraps ErrValidation with a caller-facing message.
func ValidationError(format string, args ...any) error {
	return &entityError{msg: fmt.Sprintf(format, args...), base: ErrValidation}
}

type entityError struct {
	msg  string
	base error
}

func (e *entityError) Error() string { return e.msg }

func (e *entityError) Unwrap() error { return e.base }
