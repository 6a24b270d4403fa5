// Package signaling decouples peer rendezvous from the transport carrying
// its control and relay messages. Callers program against the Adapter
// contract; three implementations bind it to a raw websocket (Socket), a
// broadcast mesh channel per topic (Echo), and a mesh channel with
// membership tracking (Presence).
package signaling

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/signalmesh/signalmesh/internal/emitter"
)

var log = logging.Logger("signaling")

// Adapter is the capability set every signaling transport exposes.
// Implementations emit the proto.EventConnect / proto.EventDisconnect /
// proto.EventMessage events through On.
type Adapter interface {
	// Connect begins connecting. The url is adapter-specific; mesh-backed
	// adapters ignore it and rely on the broadcaster they were built
	// with. Eventually emits a "connect" event.
	Connect(url string) error

	// Disconnect tears down every bound topic and emits "disconnect".
	// Safe to call repeatedly.
	Disconnect()

	// Subscribe begins binding each topic not already bound. Already
	// bound topics are skipped.
	Subscribe(topics []string)

	// Unsubscribe unbinds the given topics; unknown topics are ignored.
	Unsubscribe(topics []string)

	// Publish sends data on topic, subject to the adapter's delivery
	// rules (immediate, queued until ready, or dropped when unbound).
	Publish(topic string, data any)

	// Destroy disconnects and releases the adapter. No further calls are
	// supported afterwards.
	Destroy()

	// On registers an event listener and returns its registration ID.
	On(event string, fn emitter.Listener) int

	// Off removes a listener registered with On.
	Off(event string, id int)
}

// Base is the contract before any transport is bound: every operation
// fails with ErrNotImplemented. Concrete adapters embed it for the event
// emitter and override the operations they support.
type Base struct {
	*emitter.Emitter
}

func NewBase() Base {
	return Base{Emitter: emitter.New()}
}

func (Base) Connect(string) error {
	return ErrNotImplemented
}

func (Base) Disconnect() {
	log.Error(ErrNotImplemented)
}

func (Base) Subscribe([]string) {
	log.Error(ErrNotImplemented)
}

func (Base) Unsubscribe([]string) {
	log.Error(ErrNotImplemented)
}

func (Base) Publish(string, any) {
	log.Error(ErrNotImplemented)
}

func (Base) Destroy() {
	log.Error(ErrNotImplemented)
}
