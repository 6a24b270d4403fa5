package signaling

import (
	"sync"

	"github.com/signalmesh/signalmesh/internal/broadcast"
	"github.com/signalmesh/signalmesh/internal/state"
)

// Callbacks are the optional observer hooks of the presence adapter. Any
// entry may be nil.
type Callbacks struct {
	Here       func(members []broadcast.Member)
	Joining    func(member broadcast.Member)
	Leaving    func(member broadcast.Member)
	Error      func(err error)
	Subscribed func(topic string)
}

// Presence extends the readiness-gated adapter with a membership roster
// per topic, reconciled from the channel's here/joining/leaving signals:
// "here" replaces the roster wholesale, "joining" appends, "leaving"
// removes by member ID.
type Presence struct {
	*Echo

	rosters *state.RosterTable

	cbMu sync.Mutex
	cb   Callbacks
}

// NewPresence creates a presence-tracking adapter on top of bc, with cb
// as the initial hook set. Hooks can also be replaced later through the
// fluent setters.
func NewPresence(bc broadcast.Broadcaster, cb Callbacks) *Presence {
	p := &Presence{
		Echo:    NewEcho(bc),
		rosters: state.NewRosterTable(),
		cb:      cb,
	}
	// Route the gating adapter's error/subscribed hooks through the
	// mutable callback set so fluent setters take effect retroactively.
	p.Echo.OnError(func(err error) {
		if fn := p.callbacks().Error; fn != nil {
			fn(err)
		}
	})
	p.Echo.OnSubscribed(func(topic string) {
		if fn := p.callbacks().Subscribed; fn != nil {
			fn(topic)
		}
	})
	return p
}

func (p *Presence) callbacks() Callbacks {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	return p.cb
}

// Fluent setters. Each replaces one hook and returns the adapter so a
// construction site can chain them.

func (p *Presence) OnHere(fn func([]broadcast.Member)) *Presence {
	p.cbMu.Lock()
	p.cb.Here = fn
	p.cbMu.Unlock()
	return p
}

func (p *Presence) OnJoining(fn func(broadcast.Member)) *Presence {
	p.cbMu.Lock()
	p.cb.Joining = fn
	p.cbMu.Unlock()
	return p
}

func (p *Presence) OnLeaving(fn func(broadcast.Member)) *Presence {
	p.cbMu.Lock()
	p.cb.Leaving = fn
	p.cbMu.Unlock()
	return p
}

func (p *Presence) OnError(fn func(error)) *Presence {
	p.cbMu.Lock()
	p.cb.Error = fn
	p.cbMu.Unlock()
	return p
}

func (p *Presence) OnSubscribed(fn func(topic string)) *Presence {
	p.cbMu.Lock()
	p.cb.Subscribed = fn
	p.cbMu.Unlock()
	return p
}

// Subscribe binds each topic with the gating handlers plus the three
// roster reconciliation handlers.
func (p *Presence) Subscribe(topics []string) {
	p.Echo.subscribe(topics, func(topic string, h *broadcast.Handlers) {
		h.OnHere = func(members []broadcast.Member) {
			p.rosters.Replace(topic, members)
			if fn := p.callbacks().Here; fn != nil {
				fn(members)
			}
		}
		h.OnJoining = func(member broadcast.Member) {
			p.rosters.Add(topic, member)
			if fn := p.callbacks().Joining; fn != nil {
				fn(member)
			}
		}
		h.OnLeaving = func(member broadcast.Member) {
			p.rosters.RemoveByID(topic, member)
			if fn := p.callbacks().Leaving; fn != nil {
				fn(member)
			}
		}
	})
}

// Unsubscribe unbinds the topics and deletes their rosters.
func (p *Presence) Unsubscribe(topics []string) {
	p.Echo.Unsubscribe(topics)
	for _, topic := range topics {
		p.rosters.Drop(topic)
	}
}

func (p *Presence) Disconnect() {
	p.Echo.Disconnect()
	p.rosters.Clear()
}

func (p *Presence) Destroy() {
	p.Echo.Destroy()
	p.rosters.Clear()
}

// PresenceMembers returns the current roster of topic. Topics without a
// roster yield an empty slice, never nil.
func (p *Presence) PresenceMembers(topic string) []broadcast.Member {
	return p.rosters.Members(topic)
}

// Rosters exposes the roster table for observers (hub status page).
func (p *Presence) Rosters() *state.RosterTable {
	return p.rosters
}
