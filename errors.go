package gateway

import (
	"errors"
	"fmt"
	"net/url"
)

// Error taxonomy shared by every tool handler. The dispatcher inspects
// these sentinels with errors.Is to choose the envelope wording; user
// input problems and missing entities surface verbatim, upstream faults
// surface without transport internals.
var (
	// ErrValidation marks schema violations, unknown network names and
	// malformed addresses.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks missing transactions, contracts and pool entries.
	ErrNotFound = errors.New("not found")

	// ErrUpstream marks RPC transport, timeout and decoding failures.
	ErrUpstream = errors.New("upstream error")

	// ErrLogic marks violated arithmetic preconditions (empty samples,
	// division guards). Analytics gathers degrade to zeros instead of
	// returning it; it surfaces only where degradation is not defined.
	ErrLogic = errors.New("logic error")

	// ErrUnsupported marks stubbed operations such as USD pricing.
	ErrUnsupported = errors.New("unsupported operation")
)

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns a not-found error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Upstreamf wraps an underlying transport error with the failing step.
// The step must identify the operation and network, never the endpoint
// URL or any credential material. url.Error causes are reduced to their
// inner error so node addresses stay out of tool output.
func Upstreamf(cause error, format string, args ...any) error {
	var ue *url.Error
	if errors.As(cause, &ue) && ue.Err != nil {
		cause = ue.Err
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, fmt.Sprintf(format, args...), cause)
}

// Logicf returns a logic error with a formatted message.
func Logicf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}

// Unsupportedf returns an unsupported-operation error with a formatted
// message.
func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}
