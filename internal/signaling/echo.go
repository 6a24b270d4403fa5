package signaling

import (
	"sync"

	"github.com/signalmesh/signalmesh/internal/broadcast"
	"github.com/signalmesh/signalmesh/internal/proto"
)

// Echo binds the contract to one broadcast channel per topic. A topic
// moves unbound → bound-not-ready on Subscribe and bound-not-ready →
// bound-ready when the channel's ready signal fires; Unsubscribe removes
// it entirely. Publishes to a bound topic that is not ready yet are
// queued and flushed, in order, the moment the ready signal arrives.
//
// The queue is unbounded and has no TTL: a subscription that never
// becomes ready pins its pending messages until Unsubscribe or teardown.
type Echo struct {
	Base

	bc broadcast.Broadcaster

	mu            sync.Mutex
	shouldConnect bool
	connected     bool
	destroyed     bool
	channels      map[string]broadcast.Channel
	ready         map[string]struct{}
	queue         map[string][]any

	errFn        func(error)
	subscribedFn func(topic string)

	// Serial dispatch queue for deferred emissions, so the "connect"
	// event fires after the Connect call itself has returned.
	tasks     chan func()
	quit      chan struct{}
	closeOnce sync.Once
}

// NewEcho creates a readiness-gated adapter on top of bc. A nil bc yields
// an adapter whose Subscribe is a no-op, mirroring an unbound framework
// instance; the factory normally rejects that configuration up front.
func NewEcho(bc broadcast.Broadcaster) *Echo {
	a := &Echo{
		Base:     NewBase(),
		bc:       bc,
		channels: make(map[string]broadcast.Channel),
		ready:    make(map[string]struct{}),
		queue:    make(map[string][]any),
		tasks:    make(chan func(), 16),
		quit:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Echo) run() {
	for {
		select {
		case <-a.quit:
			return
		case fn := <-a.tasks:
			fn()
		}
	}
}

// schedule queues fn on the dispatch goroutine. Dropped after Destroy.
func (a *Echo) schedule(fn func()) {
	select {
	case <-a.quit:
	case a.tasks <- fn:
	}
}

// OnError sets the hook invoked with a *SubscriptionError whenever a
// channel reports a subscription failure. Returns the adapter for
// chaining.
func (a *Echo) OnError(fn func(error)) *Echo {
	a.mu.Lock()
	a.errFn = fn
	a.mu.Unlock()
	return a
}

// OnSubscribed sets the hook invoked with the topic name when its
// subscription is acknowledged. Returns the adapter for chaining.
func (a *Echo) OnSubscribed(fn func(topic string)) *Echo {
	a.mu.Lock()
	a.subscribedFn = fn
	a.mu.Unlock()
	return a
}

// Connect marks the adapter connected. The broadcast mesh owns its own
// physical connectivity, so url is ignored and the adapter is connected
// unconditionally; the "connect" event is emitted as a deferred task.
func (a *Echo) Connect(string) error {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return &ConfigError{Reason: "adapter already destroyed"}
	}
	a.shouldConnect = true
	a.connected = true
	a.mu.Unlock()

	a.schedule(func() {
		a.EmitSticky(proto.EventConnect, nil)
	})
	return nil
}

func (a *Echo) Subscribe(topics []string) {
	a.subscribe(topics, nil)
}

// subscribe binds each not-yet-bound topic. decorate, when non-nil, adds
// extra handlers to the binding (the presence adapter's roster hooks).
func (a *Echo) subscribe(topics []string, decorate func(topic string, h *broadcast.Handlers)) {
	var failed []*SubscriptionError

	a.mu.Lock()
	if !a.shouldConnect || a.bc == nil {
		a.mu.Unlock()
		return
	}

	for _, topic := range topics {
		if _, bound := a.channels[topic]; bound {
			continue
		}

		h := broadcast.Handlers{
			OnReady:   a.readyHandler(topic),
			OnError:   a.errorHandler(topic),
			OnMessage: a.messageHandler(topic),
			OnWhisper: a.messageHandler(topic),
		}
		if decorate != nil {
			decorate(topic, &h)
		}

		ch, err := a.bc.Join(proto.ChannelName(topic), h)
		if err != nil {
			failed = append(failed, &SubscriptionError{Topic: topic, Err: err})
			continue
		}
		a.channels[topic] = ch
	}
	fn := a.errFn
	a.mu.Unlock()

	for _, serr := range failed {
		log.Warnf("%v", serr)
		if fn != nil {
			fn(serr)
		}
	}
}

// readyHandler moves topic to bound-ready and drains its queue. Marking
// ready and draining happen under the same lock acquisition, so a
// concurrent Publish either lands in the queue before the drain or sends
// directly after it — never in between.
func (a *Echo) readyHandler(topic string) func() {
	return func() {
		a.mu.Lock()
		ch, bound := a.channels[topic]
		if !bound {
			// Unsubscribed before the acknowledgment arrived.
			a.mu.Unlock()
			return
		}
		a.ready[topic] = struct{}{}
		pending := a.queue[topic]
		delete(a.queue, topic)
		for _, data := range pending {
			if err := ch.Send(data); err != nil {
				log.Warnf("flush %s: %v", topic, err)
			}
		}
		fn := a.subscribedFn
		a.mu.Unlock()

		log.Debugf("topic %s ready, flushed %d queued message(s)", topic, len(pending))
		if fn != nil {
			fn(topic)
		}
	}
}

// errorHandler logs and forwards a subscription failure. Binding, ready,
// and queue state stay untouched; nothing is retried.
func (a *Echo) errorHandler(topic string) func(error) {
	return func(err error) {
		serr := &SubscriptionError{Topic: topic, Err: err}
		log.Warnf("%v", serr)
		a.mu.Lock()
		fn := a.errFn
		a.mu.Unlock()
		if fn != nil {
			fn(serr)
		}
	}
}

func (a *Echo) messageHandler(topic string) func(any) {
	return func(data any) {
		a.Emit(proto.EventMessage, proto.MessageEvent{Topic: topic, Data: data})
	}
}

// Publish sends data on topic when its subscription is acknowledged, and
// queues it while the topic is bound but not ready. Publishing to an
// unbound topic drops the message.
func (a *Echo) Publish(topic string, data any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, bound := a.channels[topic]
	if !bound {
		return
	}
	if _, ok := a.ready[topic]; ok {
		if err := ch.Send(data); err != nil {
			log.Warnf("publish %s: %v", topic, err)
		}
		return
	}
	a.queue[topic] = append(a.queue[topic], data)
}

func (a *Echo) Unsubscribe(topics []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, topic := range topics {
		ch, bound := a.channels[topic]
		if !bound {
			continue
		}
		ch.Leave()
		delete(a.channels, topic)
		delete(a.ready, topic)
		delete(a.queue, topic)
	}
}

func (a *Echo) Disconnect() {
	a.mu.Lock()
	wasConnected := a.connected
	a.shouldConnect = false
	a.connected = false
	for _, ch := range a.channels {
		ch.Leave()
	}
	a.channels = make(map[string]broadcast.Channel)
	a.ready = make(map[string]struct{})
	a.queue = make(map[string][]any)
	a.mu.Unlock()

	a.Clear(proto.EventConnect)
	if wasConnected {
		a.Emit(proto.EventDisconnect, nil)
	}
}

func (a *Echo) Destroy() {
	a.Disconnect()

	a.mu.Lock()
	a.destroyed = true
	a.mu.Unlock()

	a.RemoveAll()
	a.closeOnce.Do(func() { close(a.quit) })
}

// Inspection helpers.

// Connected reports whether Connect has been called without a subsequent
// Disconnect.
func (a *Echo) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Bound reports whether topic currently has a channel binding.
func (a *Echo) Bound(topic string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.channels[topic]
	return ok
}

// Ready reports whether topic's subscription has been acknowledged.
func (a *Echo) Ready(topic string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.ready[topic]
	return ok
}

// QueueLen returns the number of messages pending for topic.
func (a *Echo) QueueLen(topic string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue[topic])
}
