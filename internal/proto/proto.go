// Package proto holds the wire-level shapes shared by every signaling
// transport: the control frame exchanged with the rendezvous hub, the
// normalized message event delivered to callers, and the channel naming
// convention used on the broadcast mesh.
package proto

// Channel namespace. Every topic maps to one mesh channel named
// "<Namespace>.<topic>" so unrelated deployments on the same mesh
// do not collide.
const Namespace = "signalmesh"

// ChannelName returns the mesh channel name for a topic.
func ChannelName(topic string) string {
	return Namespace + "." + topic
}

// Frame type constants for the direct (hub) transport.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
)

// Frame is the control envelope the direct transport writes to and reads
// from the rendezvous hub. Topics is set for subscribe/unsubscribe,
// Topic+Data for publish.
type Frame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
	Topic  string   `json:"topic,omitempty"`
	Data   any      `json:"data,omitempty"`
}

// Event names emitted by every adapter.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventMessage    = "message"
)

// MessageEvent is the payload of every "message" event. Broadcast and
// peer-directed messages share this shape; the origin is transparent to
// the caller.
type MessageEvent struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}
