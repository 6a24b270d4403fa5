// Package rendezvous runs the websocket hub behind the direct transport:
// clients subscribe to topics and every publish frame is relayed to the
// topic's other subscribers. The hub keeps no message history — a client
// that was not subscribed at publish time never sees the message.
package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/signalmesh/signalmesh/internal/proto"
	"github.com/signalmesh/signalmesh/internal/util"
)

var log = logging.Logger("rendezvous")

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
	activityCap    = 200
)

// Activity is one entry of the hub's recent-activity ring, exposed on
// /status for debugging.
type Activity struct {
	TS     int64  `json:"ts"`
	Kind   string `json:"kind"` // "join" | "leave" | "subscribe" | "unsubscribe" | "publish"
	Client string `json:"client"`
	Topic  string `json:"topic,omitempty"`
}

// Status is the /status response.
type Status struct {
	Clients  int            `json:"clients"`
	Rooms    map[string]int `json:"rooms"`
	Activity []Activity     `json:"activity"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
}

// Hub is the relay server. Zero clients is a valid steady state; rooms
// exist only while at least one client subscribes to them.
type Hub struct {
	addr     string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	rooms   map[string]map[string]*client

	activity *util.Ring[Activity]

	srv *http.Server
	ln  net.Listener
}

func New(addr string) *Hub {
	return &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Signaling clients connect from anywhere on the LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		rooms:    make(map[string]map[string]*client),
		activity: util.NewRing[Activity](activityCap),
	}
}

// Handler returns the hub's HTTP handler ("/ws" upgrade, "/status"
// JSON), for mounting on an external server or httptest.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/status", h.handleStatus)
	return mux
}

// Start listens on the configured address and serves until ctx is
// cancelled.
func (h *Hub) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	h.ln = ln
	h.srv = &http.Server{Handler: h.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), util.ShortTimeout)
		defer cancel()
		_ = h.srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("hub serve: %v", err)
		}
	}()

	log.Infof("hub listening on %s", ln.Addr())
	return nil
}

// URL returns the websocket endpoint clients dial. Valid after Start.
func (h *Hub) URL() string {
	if h.ln == nil {
		return ""
	}
	return "ws://" + h.ln.Addr().String() + "/ws"
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.record(Activity{Kind: "join", Client: c.id})

	go c.writePump()
	h.readLoop(c)
}

func (c *client) writePump() {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	for {
		var f proto.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case proto.FrameSubscribe:
			h.join(c, f.Topics)
		case proto.FrameUnsubscribe:
			h.leave(c, f.Topics)
		case proto.FramePublish:
			h.relay(c, f.Topic, f.Data)
		default:
			log.Debugf("client %s: unknown frame type %q", c.id, f.Type)
		}
	}
}

func (h *Hub) join(c *client, topics []string) {
	h.mu.Lock()
	for _, topic := range topics {
		if _, err := util.ValidateTopic(topic); err != nil {
			log.Debugf("client %s: rejected topic %q: %v", c.id, topic, err)
			continue
		}
		if h.rooms[topic] == nil {
			h.rooms[topic] = make(map[string]*client)
		}
		h.rooms[topic][c.id] = c
		c.topics[topic] = struct{}{}
	}
	h.mu.Unlock()

	for _, topic := range topics {
		h.record(Activity{Kind: "subscribe", Client: c.id, Topic: topic})
	}
}

func (h *Hub) leave(c *client, topics []string) {
	h.mu.Lock()
	for _, topic := range topics {
		h.dropFromRoomLocked(c, topic)
	}
	h.mu.Unlock()

	for _, topic := range topics {
		h.record(Activity{Kind: "unsubscribe", Client: c.id, Topic: topic})
	}
}

// dropFromRoomLocked requires h.mu held.
func (h *Hub) dropFromRoomLocked(c *client, topic string) {
	if room := h.rooms[topic]; room != nil {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, topic)
		}
	}
	delete(c.topics, topic)
}

// relay forwards a publish frame to every subscriber of topic except the
// sender. Slow clients lose frames rather than stall the room.
func (h *Hub) relay(sender *client, topic string, data any) {
	b, err := json.Marshal(proto.Frame{Type: proto.FramePublish, Topic: topic, Data: data})
	if err != nil {
		log.Debugf("client %s: marshal publish for %q: %v", sender.id, topic, err)
		return
	}

	h.mu.Lock()
	for id, c := range h.rooms[topic] {
		if id == sender.id {
			continue
		}
		select {
		case c.send <- b:
		default:
			log.Warnf("client %s: send buffer full, dropping frame for %q", id, topic)
		}
	}
	h.mu.Unlock()

	h.record(Activity{Kind: "publish", Client: sender.id, Topic: topic})
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for topic := range c.topics {
		h.dropFromRoomLocked(c, topic)
	}
	h.mu.Unlock()

	close(c.send)
	h.record(Activity{Kind: "leave", Client: c.id})
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	st := Status{
		Clients: len(h.clients),
		Rooms:   make(map[string]int, len(h.rooms)),
	}
	for topic, room := range h.rooms {
		st.Rooms[topic] = len(room)
	}
	h.mu.Unlock()
	st.Activity = h.activity.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (h *Hub) record(a Activity) {
	a.TS = time.Now().UnixMilli()
	h.activity.Push(a)
}
