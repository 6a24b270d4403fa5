package signaling

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/signalmesh/signalmesh/internal/proto"
	"github.com/signalmesh/signalmesh/internal/util"
)

// Socket forwards the contract 1:1 onto a websocket connection to a
// rendezvous hub. It keeps no per-topic state: control frames are sent
// immediately while connected and silently dropped otherwise — the hub
// rebuilds room membership when the caller re-subscribes after a
// reconnect.
type Socket struct {
	Base

	defaultURL string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex
}

// NewSocket creates a direct-transport adapter. defaultURL, may be empty,
// is used when Connect is called with an empty url.
func NewSocket(defaultURL string) *Socket {
	return &Socket{Base: NewBase(), defaultURL: defaultURL}
}

func (s *Socket) Connect(rawURL string) error {
	if rawURL == "" {
		rawURL = s.defaultURL
	}
	wsURL := util.WebSocketURL(rawURL)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("signaling: dial %s: %w", wsURL, err)
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	go s.readPump(conn)
	s.EmitSticky(proto.EventConnect, nil)
	return nil
}

// readPump normalizes inbound publish frames into message events. It owns
// the disconnect transition for connection loss; a deliberate Disconnect
// claims the transition first and the pump exits quietly.
func (s *Socket) readPump(conn *websocket.Conn) {
	for {
		var f proto.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Type == proto.FramePublish {
			s.Emit(proto.EventMessage, proto.MessageEvent{Topic: f.Topic, Data: f.Data})
		}
	}

	s.mu.Lock()
	stillOurs := s.conn == conn && s.connected
	if stillOurs {
		s.conn = nil
		s.connected = false
	}
	s.mu.Unlock()

	if stillOurs {
		_ = conn.Close()
		s.Clear(proto.EventConnect)
		s.Emit(proto.EventDisconnect, nil)
	}
}

func (s *Socket) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	wasConnected := s.connected
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	if !wasConnected {
		return
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.Clear(proto.EventConnect)
	s.Emit(proto.EventDisconnect, nil)
}

func (s *Socket) Subscribe(topics []string) {
	if len(topics) == 0 {
		return
	}
	s.send(proto.Frame{Type: proto.FrameSubscribe, Topics: topics})
}

func (s *Socket) Unsubscribe(topics []string) {
	if len(topics) == 0 {
		return
	}
	s.send(proto.Frame{Type: proto.FrameUnsubscribe, Topics: topics})
}

func (s *Socket) Publish(topic string, data any) {
	s.send(proto.Frame{Type: proto.FramePublish, Topic: topic, Data: data})
}

func (s *Socket) Destroy() {
	s.Disconnect()
	s.RemoveAll()
}

func (s *Socket) send(f proto.Frame) {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return // dropped: no queue on the direct transport
	}

	s.writeMu.Lock()
	err := conn.WriteJSON(f)
	s.writeMu.Unlock()
	if err != nil {
		log.Debugf("socket: write %s frame: %v", f.Type, err)
	}
}
