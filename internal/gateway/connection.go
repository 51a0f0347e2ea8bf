package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/services/pubsub"
)

// Connection represents a WebSocket connection to a display surface.
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time

	manager *ConnectionManager

	// send carries encoded frames to writePump; it is never closed, done signals shutdown.
	send      chan []byte
	kick      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]*pubsub.Subscriber
}

// Close leaves every room and tears the socket down. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		subs := make([]*pubsub.Subscriber, 0, len(c.rooms))
		for _, sub := range c.rooms {
			subs = append(subs, sub)
		}
		c.rooms = make(map[string]*pubsub.Subscriber)
		c.mu.Unlock()

		for _, sub := range subs {
			c.manager.broker.Unsubscribe(sub)
		}
		_ = c.Conn.Close()
		c.manager.unregisterConnection(c)
	})
}

// Rooms returns the events this connection has joined.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connection) join(eventID string) {
	c.mu.Lock()
	if _, ok := c.rooms[eventID]; ok {
		c.mu.Unlock()
		c.sendMessage(eventID, protocol.ServerTime{ServerTime: c.manager.clock.Now()})
		return
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	sub := c.manager.broker.Subscribe(eventID, c.manager.config.SendBufferSize)
	c.rooms[eventID] = sub
	c.mu.Unlock()

	go c.forward(sub)
	c.sendMessage(eventID, protocol.ServerTime{ServerTime: c.manager.clock.Now()})

	log.Info().Str("connection_id", c.ID).Str("event_id", eventID).Msg("joined event room")
}

// leave unsubscribes from eventID. The event's timers are not affected.
func (c *Connection) leave(eventID string) {
	c.mu.Lock()
	sub, ok := c.rooms[eventID]
	delete(c.rooms, eventID)
	c.mu.Unlock()

	if ok {
		c.manager.broker.Unsubscribe(sub)
	}
	if viewers, removed := c.manager.presence.Leave(eventID, c.ID); removed {
		c.manager.broker.Publish(eventID, protocol.PresenceUpdated{Viewers: viewers})
	}
	log.Info().Str("connection_id", c.ID).Str("event_id", eventID).Msg("left event room")
}

// forward encodes room deliveries onto the send queue until the subscription closes.
func (c *Connection) forward(sub *pubsub.Subscriber) {
	for d := range sub.Channel {
		frame, err := protocol.Encode(d.EventID, d.Message, d.At)
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode broadcast")
			continue
		}
		c.enqueue(frame)
	}
}

func (c *Connection) sendMessage(eventID string, msg protocol.Message) {
	frame, err := protocol.Encode(eventID, msg, c.manager.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode message")
		return
	}
	c.enqueue(frame)
}

// enqueue hands a frame to writePump. A connection whose buffer is full is closed.
func (c *Connection) enqueue(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, closing connection")
		go c.Close()
	}
}

// kickWith writes frame as the connection's last message, then closes it.
func (c *Connection) kickWith(frame []byte) {
	select {
	case c.kick <- frame:
	default:
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	cfg := c.manager.config
	ticker := c.manager.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.kick:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			_ = c.Conn.WriteMessage(websocket.TextMessage, frame)
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "disconnected by admin"))
			return

		case frame := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading requests from the WebSocket connection.
func (c *Connection) readPump() {
	cfg := c.manager.config
	defer c.Close()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.manager.presence.Touch(c.ID)
		return c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.manager.presence.Touch(c.ID)
		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}

// handleClientMessage dispatches one client request. Requests never mutate timers.
func (c *Connection) handleClientMessage(message []byte) {
	req, err := protocol.ParseRequest(message)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("rejected client message")
		c.sendMessage(req.EventID, protocol.Error{RequestID: req.RequestID, Message: err.Error()})
		return
	}

	switch req.Type {
	case protocol.RequestJoinEvent:
		c.join(req.EventID)

	case protocol.RequestLeaveEvent:
		c.leave(req.EventID)

	case protocol.RequestTimeSync:
		c.sendMessage(req.EventID, protocol.ServerTime{ServerTime: c.manager.clock.Now()})

	case protocol.RequestInitialSync:
		ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.RequestTimeout)
		defer cancel()
		snap, err := c.manager.sync.Snapshot(ctx, req.EventID)
		if err != nil {
			c.replyError(req, err)
			return
		}
		c.sendMessage(req.EventID, protocol.InitialSync{RequestID: req.RequestID, Snapshot: snap})

	case protocol.RequestScheduleSync:
		ctx, cancel := context.WithTimeout(context.Background(), c.manager.config.RequestTimeout)
		defer cancel()
		st, err := c.manager.sync.ScheduleState(ctx, req.EventID)
		if err != nil {
			c.replyError(req, err)
			return
		}
		c.sendMessage(req.EventID, protocol.ScheduleSync{RequestID: req.RequestID, State: st})

	case protocol.RequestPresenceJoin:
		viewer, err := req.Viewer()
		if err != nil {
			c.replyError(req, err)
			return
		}
		viewers := c.manager.presence.Join(req.EventID, c.ID, viewer)
		c.manager.broker.Publish(req.EventID, protocol.PresenceUpdated{Viewers: viewers})
		log.Info().
			Str("connection_id", c.ID).
			Str("event_id", req.EventID).
			Str("user_id", viewer.UserID).
			Msg("presence joined")
	}
}

func (c *Connection) replyError(req protocol.Request, err error) {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	log.Warn().Err(err).Str("connection_id", c.ID).Str("request", string(req.Type)).Msg("client request failed")
	c.sendMessage(req.EventID, protocol.Error{RequestID: req.RequestID, Message: msg})
}
