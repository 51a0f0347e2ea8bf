// Package pubsub fans protocol messages out to the subscribers of each event room.
package pubsub

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
)

// Delivery is one message addressed to a room.
type Delivery struct {
	EventID string
	Message protocol.Message
	At      time.Time
}

// Subscriber represents a subscription to one room.
type Subscriber struct {
	ID      string
	EventID string
	Channel chan Delivery
}

// PubSub manages room subscriptions and message distribution.
type PubSub struct {
	mu     sync.RWMutex
	rooms  map[string][]*Subscriber
	nextID int
	clock  clock.Clock

	onDrop func(eventID string, msg protocol.Message)
}

// New creates a new PubSub instance.
func New(clk clock.Clock) *PubSub {
	if clk == nil {
		clk = clock.Real()
	}
	return &PubSub{
		rooms: make(map[string][]*Subscriber),
		clock: clk,
	}
}

// SetDropCallback registers a callback for messages skipped because a subscriber was full.
func (ps *PubSub) SetDropCallback(fn func(eventID string, msg protocol.Message)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.onDrop = fn
}

// Subscribe joins a room.
func (ps *PubSub) Subscribe(eventID string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.nextID++
	sub := &Subscriber{
		ID:      strconv.Itoa(ps.nextID),
		EventID: eventID,
		Channel: make(chan Delivery, bufferSize),
	}

	ps.rooms[eventID] = append(ps.rooms[eventID], sub)
	return sub
}

// Unsubscribe leaves a room and closes the subscriber's channel. Empty rooms are removed.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.rooms[sub.EventID]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			subs = append(subs[:i], subs[i+1:]...)
			if len(subs) == 0 {
				delete(ps.rooms, sub.EventID)
			} else {
				ps.rooms[sub.EventID] = subs
			}
			return
		}
	}
}

// Publish sends a message to every subscriber of a room without blocking.
// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
func (ps *PubSub) Publish(eventID string, msg protocol.Message) {
	d := Delivery{EventID: eventID, Message: msg, At: ps.clock.Now()}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	ps.deliver(ps.rooms[eventID], d)
}

// PublishAll sends a message to every room, addressed to each room's event.
func (ps *PubSub) PublishAll(msg protocol.Message) {
	at := ps.clock.Now()

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for eventID, subs := range ps.rooms {
		ps.deliver(subs, Delivery{EventID: eventID, Message: msg, At: at})
	}
}

func (ps *PubSub) deliver(subs []*Subscriber, d Delivery) {
	for _, sub := range subs {
		select {
		case sub.Channel <- d:
		default:
			if ps.onDrop != nil {
				ps.onDrop(d.EventID, d.Message)
			}
		}
	}
}

// SubscriberCount returns the number of subscribers in a room.
func (ps *PubSub) SubscriberCount(eventID string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.rooms[eventID])
}

// Rooms returns the event IDs that currently have subscribers.
func (ps *PubSub) Rooms() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	ids := make([]string, 0, len(ps.rooms))
	for id := range ps.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Publisher is anything that accepts room messages.
type Publisher interface {
	Publish(eventID string, msg protocol.Message)
}

type tee []Publisher

func (t tee) Publish(eventID string, msg protocol.Message) {
	for _, p := range t {
		p.Publish(eventID, msg)
	}
}

// Tee returns a Publisher that forwards to each non-nil publisher in order.
func Tee(publishers ...Publisher) Publisher {
	out := make(tee, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
