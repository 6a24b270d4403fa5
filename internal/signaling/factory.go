package signaling

import (
	"fmt"

	"github.com/signalmesh/signalmesh/internal/broadcast"
)

// Adapter type names accepted by New.
const (
	TypeDefault      = "default"
	TypeEcho         = "echo"
	TypeEchoPresence = "echo-presence"
)

// Options selects and configures an adapter.
type Options struct {
	// Type is one of TypeDefault, TypeEcho, TypeEchoPresence. Empty means
	// TypeDefault.
	Type string

	// URL is the hub address for the direct transport. Ignored by the
	// mesh-backed types.
	URL string

	// Broadcaster is the framework instance the echo types bind to.
	// Required for TypeEcho and TypeEchoPresence.
	Broadcaster broadcast.Broadcaster

	// Callbacks populates the presence adapter's hook set.
	Callbacks Callbacks
}

// New builds an adapter from cfg, which may be a hub URL string, an
// already-built Adapter (returned unchanged), or an Options value.
func New(cfg any) (Adapter, error) {
	switch v := cfg.(type) {
	case string:
		return NewSocket(v), nil
	case Adapter:
		return v, nil
	case Options:
		return fromOptions(v)
	case *Options:
		return fromOptions(*v)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported configuration type %T", cfg)}
	}
}

func fromOptions(o Options) (Adapter, error) {
	switch o.Type {
	case "", TypeDefault:
		return NewSocket(o.URL), nil
	case TypeEcho:
		if o.Broadcaster == nil {
			return nil, ErrMissingBroadcaster
		}
		return NewEcho(o.Broadcaster), nil
	case TypeEchoPresence:
		if o.Broadcaster == nil {
			return nil, ErrMissingBroadcaster
		}
		return NewPresence(o.Broadcaster, o.Callbacks), nil
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown adapter type %q", o.Type)}
	}
}
