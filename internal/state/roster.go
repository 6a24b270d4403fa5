// Package state holds the mutable membership state of presence-tracked
// topics.
package state

import (
	"sync"

	"github.com/signalmesh/signalmesh/internal/broadcast"
)

// RosterEvent describes one roster mutation, for observers such as the
// hub status page.
type RosterEvent struct {
	Type   string             `json:"type"` // "here" | "joining" | "leaving" | "drop"
	Topic  string             `json:"topic"`
	Member *broadcast.Member  `json:"member,omitempty"`
	Roster []broadcast.Member `json:"roster,omitempty"`
}

// RosterTable maps topics to their current membership. A roster exists
// only for topics that saw at least one presence event since the last
// Drop; reading an unknown topic yields an empty slice, never nil.
type RosterTable struct {
	mu        sync.Mutex
	rosters   map[string][]broadcast.Member
	listeners []chan RosterEvent
}

func NewRosterTable() *RosterTable {
	return &RosterTable{rosters: make(map[string][]broadcast.Member)}
}

// Replace installs members as the authoritative roster for topic.
func (t *RosterTable) Replace(topic string, members []broadcast.Member) {
	cp := make([]broadcast.Member, len(members))
	copy(cp, members)

	t.mu.Lock()
	t.rosters[topic] = cp
	t.notify(RosterEvent{Type: "here", Topic: topic, Roster: cp})
	t.mu.Unlock()
}

// Add appends member to the topic's roster, creating it if absent.
func (t *RosterTable) Add(topic string, member broadcast.Member) {
	t.mu.Lock()
	t.rosters[topic] = append(t.rosters[topic], member)
	t.notify(RosterEvent{Type: "joining", Topic: topic, Member: &member})
	t.mu.Unlock()
}

// RemoveByID removes every roster entry of topic whose ID matches
// member.ID. A miss leaves the roster unchanged and emits nothing.
func (t *RosterTable) RemoveByID(topic string, member broadcast.Member) {
	t.mu.Lock()
	cur, ok := t.rosters[topic]
	if !ok {
		t.mu.Unlock()
		return
	}
	// Filter into a fresh slice: the current one may still be referenced
	// by a roster snapshot handed to listeners.
	kept := make([]broadcast.Member, 0, len(cur))
	for _, m := range cur {
		if m.ID != member.ID {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(cur) {
		t.mu.Unlock()
		return
	}
	t.rosters[topic] = kept
	t.notify(RosterEvent{Type: "leaving", Topic: topic, Member: &member})
	t.mu.Unlock()
}

// Members returns a copy of the topic's roster; empty (non-nil) when the
// topic has none.
func (t *RosterTable) Members(topic string) []broadcast.Member {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.rosters[topic]
	out := make([]broadcast.Member, len(cur))
	copy(out, cur)
	return out
}

// Drop deletes the topic's roster entirely.
func (t *RosterTable) Drop(topic string) {
	t.mu.Lock()
	if _, ok := t.rosters[topic]; ok {
		delete(t.rosters, topic)
		t.notify(RosterEvent{Type: "drop", Topic: topic})
	}
	t.mu.Unlock()
}

// Clear deletes every roster.
func (t *RosterTable) Clear() {
	t.mu.Lock()
	for topic := range t.rosters {
		t.notify(RosterEvent{Type: "drop", Topic: topic})
	}
	t.rosters = make(map[string][]broadcast.Member)
	t.mu.Unlock()
}

// Len returns the number of topics with a roster.
func (t *RosterTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rosters)
}

// Subscribe returns a channel receiving roster events. Slow consumers
// miss events rather than block mutations.
func (t *RosterTable) Subscribe() chan RosterEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan RosterEvent, 16)
	t.listeners = append(t.listeners, ch)
	return ch
}

func (t *RosterTable) Unsubscribe(ch chan RosterEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, listener := range t.listeners {
		if listener == ch {
			close(listener)
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// notify requires t.mu held.
func (t *RosterTable) notify(evt RosterEvent) {
	for _, ch := range t.listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}
