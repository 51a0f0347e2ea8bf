// Package presence tracks who is viewing each event.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
)

type entry struct {
	viewer   protocol.Viewer
	lastSeen time.Time
}

// Registry holds presence per event, keyed by connection. It is in-memory only.
type Registry struct {
	mu      sync.Mutex
	byEvent map[string]map[string]*entry
	clock   clock.Clock
}

// New creates an empty Registry.
func New(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		byEvent: make(map[string]map[string]*entry),
		clock:   clk,
	}
}

// Join records connID as viewer of eventID and returns the event's viewer list.
func (r *Registry) Join(eventID, connID string, v protocol.Viewer) []protocol.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byEvent[eventID]
	if !ok {
		m = make(map[string]*entry)
		r.byEvent[eventID] = m
	}
	m[connID] = &entry{viewer: v, lastSeen: r.clock.Now()}
	return r.list(eventID)
}

// Leave removes connID from eventID. It reports whether anything was removed.
func (r *Registry) Leave(eventID, connID string) ([]protocol.Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byEvent[eventID]
	if !ok {
		return nil, false
	}
	if _, ok := m[connID]; !ok {
		return r.list(eventID), false
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(r.byEvent, eventID)
	}
	return r.list(eventID), true
}

// Disconnect removes connID everywhere and returns the new list of each affected event.
func (r *Registry) Disconnect(connID string) map[string][]protocol.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := make(map[string][]protocol.Viewer)
	for eventID, m := range r.byEvent {
		if _, ok := m[connID]; !ok {
			continue
		}
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byEvent, eventID)
		}
		affected[eventID] = r.list(eventID)
	}
	return affected
}

// Touch refreshes the last-seen time of connID in every event.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, m := range r.byEvent {
		if e, ok := m[connID]; ok {
			e.lastSeen = now
		}
	}
}

// Prune drops entries not seen within ttl and returns the new list of each affected event.
func (r *Registry) Prune(ttl time.Duration) map[string][]protocol.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-ttl)
	affected := make(map[string][]protocol.Viewer)
	for eventID, m := range r.byEvent {
		changed := false
		for connID, e := range m {
			if e.lastSeen.Before(cutoff) {
				delete(m, connID)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if len(m) == 0 {
			delete(r.byEvent, eventID)
		}
		affected[eventID] = r.list(eventID)
	}
	return affected
}

// List returns the viewers of eventID.
func (r *Registry) List(eventID string) []protocol.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(eventID)
}

// All returns the viewers of every event with at least one viewer.
func (r *Registry) All() map[string][]protocol.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]protocol.Viewer, len(r.byEvent))
	for eventID := range r.byEvent {
		out[eventID] = r.list(eventID)
	}
	return out
}

// ConnectionsOf returns the connections through which userID views eventID.
func (r *Registry) ConnectionsOf(eventID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for connID, e := range r.byEvent[eventID] {
		if e.viewer.UserID == userID {
			ids = append(ids, connID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) list(eventID string) []protocol.Viewer {
	m := r.byEvent[eventID]
	out := make([]protocol.Viewer, 0, len(m))
	for _, e := range m {
		out = append(out, e.viewer)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserName != out[j].UserName {
			return out[i].UserName < out[j].UserName
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
