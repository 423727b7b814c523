package chatbot

import (
	"errors"
	"fmt"

	"DeepChat/internal/attachment"
	"DeepChat/internal/backend"
	"DeepChat/internal/config"
)

var (
	// ErrEmptyMessage is returned by Submit for blank input. Surfaces ignore it.
	ErrEmptyMessage = errors.New("message is empty")
	ErrClosed       = errors.New("coordinator is closed")
	// ErrInternal wraps a recovered panic from a worker job
	ErrInternal = errors.New("internal error")
)

// Describe turns an error from an ErrorEvent into text for the operator
func Describe(err error) string {
	var (
		cfgErr    *config.Error
		remoteErr *backend.RemoteCallError
		readErr   *attachment.ReadError
	)

	switch {
	case errors.Is(err, ErrClosed):
		return "The chat session is shutting down."
	case errors.Is(err, config.ErrMissingCredential):
		return "API key is not set. Enter it with /key <value>."
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("Configuration error: %v", cfgErr)
	case errors.As(err, &remoteErr):
		return fmt.Sprintf("API call failed: %v", remoteErr.Err)
	case errors.As(err, &readErr):
		return fmt.Sprintf("Could not read file: %v", readErr)
	default:
		return "An unexpected error occurred. Please check the logs for details."
	}
}
