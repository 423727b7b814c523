package backend

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse means the endpoint answered without a usable reply
var ErrMalformedResponse = errors.New("malformed completion response")

// RemoteCallError wraps any failure of a completion call: transport errors,
// non-200 statuses and responses without a reply.
type RemoteCallError struct {
	Model      string
	StatusCode int // zero when no HTTP response was received
	Err        error
}

func (e *RemoteCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion call to %s failed (status %d): %v", e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion call to %s failed: %v", e.Model, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
