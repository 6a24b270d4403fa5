package signaling

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is returned by Base for every contract operation a
// concrete adapter did not override. Hitting it is a programmer error.
var ErrNotImplemented = errors.New("signaling: operation not implemented")

// ConfigError reports an invalid adapter construction. Fatal: the factory
// refuses to build the adapter, nothing is retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "signaling: " + e.Reason
}

// ErrMissingBroadcaster is returned when an echo-type adapter is
// requested without a broadcaster instance to bind to.
var ErrMissingBroadcaster error = &ConfigError{Reason: "broadcaster instance is required"}

// SubscriptionError reports a channel-level subscription failure from the
// underlying transport. Non-fatal: it is logged and forwarded to the
// error callback, and never mutates binding, ready, queue, or roster
// state.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("signaling: subscription failed for topic %q: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
