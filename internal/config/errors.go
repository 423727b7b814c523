package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means no API key has been supplied yet
	ErrMissingCredential = errors.New("api key is not set")
	ErrInvalidValue      = errors.New("invalid value")
)

// Error reports a configuration or credential problem
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
