package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

var log = logging.Logger("broadcast")

// envelope is the wire shape published on a mesh channel. To is empty for
// broadcast messages and carries the target peer ID for whispers.
type envelope struct {
	From string          `json:"from"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data"`
}

// PubSub binds channels onto a gossipsub mesh. One channel name maps to
// one gossipsub topic; membership events come from the topic's event
// handler, the initial roster snapshot from ListPeers at subscribe time.
type PubSub struct {
	ps   *pubsub.PubSub
	self peer.ID
}

// NewPubSub wraps an existing gossipsub router. self is the local host's
// peer ID, used to filter own messages and to address whispers.
func NewPubSub(ps *pubsub.PubSub, self peer.ID) *PubSub {
	return &PubSub{ps: ps, self: self}
}

func (p *PubSub) Join(name string, h Handlers) (Channel, error) {
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", name, err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &meshChannel{
		name:   name,
		topic:  t,
		sub:    sub,
		self:   p.self,
		ctx:    ctx,
		cancel: cancel,
	}

	wantPresence := h.OnHere != nil || h.OnJoining != nil || h.OnLeaving != nil
	if wantPresence {
		ev, err := t.EventHandler()
		if err != nil {
			ch.Leave()
			return nil, fmt.Errorf("event handler %s: %w", name, err)
		}
		ch.events = ev
		go ch.membershipLoop(h)
	}
	go ch.readLoop(h)

	log.Debugf("joined channel %s", name)
	return ch, nil
}

type meshChannel struct {
	name   string
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	events *pubsub.TopicEventHandler
	self   peer.ID
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *meshChannel) Send(data any) error {
	return c.publish(envelope{From: c.self.String()}, data)
}

func (c *meshChannel) Whisper(memberID string, data any) error {
	return c.publish(envelope{From: c.self.String(), To: memberID}, data)
}

func (c *meshChannel) publish(env envelope, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", c.name, err)
	}
	env.Data = raw
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.topic.Publish(c.ctx, b)
}

func (c *meshChannel) Leave() {
	c.once.Do(func() {
		c.cancel()
		c.sub.Cancel()
		if c.events != nil {
			c.events.Cancel()
		}
		if err := c.topic.Close(); err != nil {
			log.Debugf("close channel %s: %v", c.name, err)
		}
	})
}

// readLoop signals readiness, delivers the initial roster snapshot, then
// pumps messages until the channel is left. The subscription loop running
// is what "acknowledged" means on a gossipsub mesh: from this point on
// published messages reach the local router.
func (c *meshChannel) readLoop(h Handlers) {
	if h.OnReady != nil {
		h.OnReady()
	}
	if h.OnHere != nil {
		h.OnHere(c.roster())
	}

	for {
		m, err := c.sub.Next(c.ctx)
		if err != nil {
			return // subscription cancelled
		}
		if m.ReceivedFrom == c.self || m.GetFrom() == c.self {
			continue
		}

		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Warnf("channel %s: malformed envelope from %s: %v", c.name, m.GetFrom(), err)
			if h.OnError != nil {
				h.OnError(fmt.Errorf("channel %s: decode envelope: %w", c.name, err))
			}
			continue
		}

		var data any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				log.Warnf("channel %s: malformed payload: %v", c.name, err)
				continue
			}
		}

		switch {
		case env.To == "":
			if h.OnMessage != nil {
				h.OnMessage(data)
			}
		case env.To == c.self.String():
			if h.OnWhisper != nil {
				h.OnWhisper(data)
			}
			// whisper for somebody else: drop
		}
	}
}

func (c *meshChannel) membershipLoop(h Handlers) {
	for {
		ev, err := c.events.NextPeerEvent(c.ctx)
		if err != nil {
			return
		}
		m := Member{ID: ev.Peer.String()}
		switch ev.Type {
		case pubsub.PeerJoin:
			if h.OnJoining != nil {
				h.OnJoining(m)
			}
		case pubsub.PeerLeave:
			if h.OnLeaving != nil {
				h.OnLeaving(m)
			}
		}
	}
}

// roster returns the current channel membership, self first.
func (c *meshChannel) roster() []Member {
	peers := c.topic.ListPeers()
	members := make([]Member, 0, len(peers)+1)
	members = append(members, Member{ID: c.self.String()})
	for _, p := range peers {
		members = append(members, Member{ID: p.String()})
	}
	return members
}
