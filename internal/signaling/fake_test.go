package signaling

import (
	"sync"

	"github.com/signalmesh/signalmesh/internal/broadcast"
	"github.com/signalmesh/signalmesh/internal/proto"
)

// fakeBroadcaster records channel joins and lets tests fire the attached
// handlers by hand, standing in for the mesh's delivery goroutine.
type fakeBroadcaster struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	joins    int
	joinErr  error
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{channels: make(map[string]*fakeChannel)}
}

func (b *fakeBroadcaster) Join(name string, h broadcast.Handlers) (broadcast.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joins++
	if b.joinErr != nil {
		return nil, b.joinErr
	}
	ch := &fakeChannel{name: name, handlers: h}
	b.channels[name] = ch
	return ch, nil
}

// channel returns the binding for a topic (not a raw channel name).
func (b *fakeBroadcaster) channel(topic string) *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[proto.ChannelName(topic)]
}

func (b *fakeBroadcaster) joinCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joins
}

type fakeChannel struct {
	name     string
	handlers broadcast.Handlers

	mu   sync.Mutex
	sent []any
	left bool
}

func (c *fakeChannel) Send(data any) error {
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Whisper(_ string, data any) error {
	return c.Send(data)
}

func (c *fakeChannel) Leave() {
	c.mu.Lock()
	c.left = true
	c.mu.Unlock()
}

func (c *fakeChannel) sentMessages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) isLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}
