package model

import (
	"errors"
	"fmt"
)

// DefaultUserMessage is the localized generic text shown to a client when a
// handler fails for reasons the user cannot act on. The underlying cause is
// logged with full detail instead.
const DefaultUserMessage = "Something went wrong. Please try again."

// ErrDoubleExecution reports that the message token already completed a
// dispatch. Callers treat it as a no-op success, not a failure.
var ErrDoubleExecution = errors.New("inbound event already processed")

// ValidationError reports bad or incomplete raw input. It is recoverable:
// the originating session receives an error frame and stays open.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message input: " + e.Reason
}

// DuplicateHandlerError reports a second registration for the same
// (handler name, version) key. This is a boot-time misconfiguration and
// must abort process start.
type DuplicateHandlerError struct {
	Name    string
	Version int
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("handler %q v%d is already registered", e.Name, e.Version)
}

// DeliveryFailure reports a guaranteed-attempt send that exhausted its retry
// budget against one group member. It names both so the caller can treat the
// business action as partially failed.
type DeliveryFailure struct {
	Group  string
	Member string
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery to group %s member %s failed: send buffer full after retries", e.Group, e.Member)
}

// InvalidActionCodeError reports a message code with no registered handler.
type InvalidActionCodeError struct {
	Code string
}

func (e *InvalidActionCodeError) Error() string {
	return fmt.Sprintf("invalid action code %q", e.Code)
}

// HandlingError wraps a handler dispatch failure. UserMessage is safe to show
// to the client; Err carries the real cause for the logs.
type HandlingError struct {
	UserMessage string
	Err         error
}

func (e *HandlingError) Error() string {
	return "message handling failed: " + e.Err.Error()
}

func (e *HandlingError) Unwrap() error { return e.Err }

// UserText returns the client-facing text, falling back to the generic one.
func (e *HandlingError) UserText() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return DefaultUserMessage
}
