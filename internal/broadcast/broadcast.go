// Package broadcast defines the narrow capability surface the signaling
// adapters consume from a broadcasting framework: join or leave a named
// channel, attach ready/error/message/membership handlers, send on a
// bound channel. The gossipsub-backed implementation lives in pubsub.go.
package broadcast

// Member is one participant in a presence channel.
type Member struct {
	ID   string `json:"id"`
	Info any    `json:"info,omitempty"`
}

// Handlers are attached when a channel is joined. Nil entries are skipped.
// OnReady fires once, when the framework has acknowledged the
// subscription; OnHere/OnJoining/OnLeaving fire only on presence-capable
// channels. All handlers are invoked from the framework's delivery
// goroutine, one at a time per channel.
type Handlers struct {
	OnReady   func()
	OnError   func(error)
	OnMessage func(data any) // broadcast message
	OnWhisper func(data any) // peer-directed message

	OnHere    func(members []Member) // authoritative roster snapshot
	OnJoining func(member Member)
	OnLeaving func(member Member)
}

// Channel is a bound transport handle for one channel name.
type Channel interface {
	// Send publishes data to the channel. Valid only after OnReady fired;
	// the readiness gating in front of this is the adapter's job.
	Send(data any) error

	// Whisper sends data to a single member of the channel.
	Whisper(memberID string, data any) error

	// Leave unbinds the channel and stops handler delivery. Idempotent.
	Leave()
}

// Broadcaster opens channel bindings. Implementations: PubSub (gossipsub
// mesh) in this package, scripted fakes in adapter tests.
type Broadcaster interface {
	Join(name string, h Handlers) (Channel, error)
}
