// Package inference defines the contract the pipeline has with the free-text
// inference service. The core never assumes the service is reliable: every
// call carries a timeout, every response is validated against the expected
// output shape, and every failure is a typed error the caller can route to a
// deterministic fallback.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an inference failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
)

// Error is the typed failure returned by every Client implementation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// Client is the minimal surface a stage uses to call the inference service.
// GenerateJSON sends the prompt and unmarshals the structured answer into
// out; any shape mismatch is reported as a malformed Error, never as
// partially populated output.
type Client interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}
