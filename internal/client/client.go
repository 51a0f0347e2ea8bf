package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
)

// ErrForceDisconnected is returned by Run after the server sent forceDisconnect.
var ErrForceDisconnected = errors.New("disconnected by server")

// Config controls a Client.
type Config struct {
	// URL is the server WebSocket endpoint, for example ws://localhost:4000/ws.
	URL     string
	EventID string

	// Passive displays pull scheduleSync every PassiveResyncInterval.
	Passive               bool
	PassiveResyncInterval time.Duration

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration

	// Viewer, when set, is announced with presenceJoin after every connect.
	Viewer *protocol.Viewer

	// OnMessage is called after each message has been applied.
	OnMessage func(protocol.Message)
}

// DefaultConfig returns client defaults for eventID.
func DefaultConfig(serverURL, eventID string) Config {
	return Config{
		URL:                   serverURL,
		EventID:               eventID,
		PassiveResyncInterval: 20 * time.Second,
		ReconnectDelay:        time.Second,
		MaxReconnectDelay:     30 * time.Second,
		HandshakeTimeout:      10 * time.Second,
	}
}

// Client keeps a State in sync with the server for one event.
type Client struct {
	ID    string
	cfg   Config
	state *State
	base  clock.Clock

	writeMu sync.Mutex
}

// New creates a Client. clk is the local clock; nil uses the wall clock.
func New(cfg Config, clk clock.Clock) *Client {
	if cfg.PassiveResyncInterval <= 0 {
		cfg.PassiveResyncInterval = 20 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	offset := clock.NewOffsetClock(clk)
	return &Client{
		ID:    uuid.New().String(),
		cfg:   cfg,
		state: NewState(offset),
		base:  offset.Base(),
	}
}

// State returns the local projection.
func (c *Client) State() *State {
	return c.state
}

// Run connects and keeps reconnecting until ctx is cancelled or the server force-disconnects.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrForceDisconnected) {
			return err
		}
		if connected {
			attempt = 0
		}
		attempt++
		delay := c.backoff(attempt)
		log.Warn().Err(err).Str("event_id", c.cfg.EventID).Int("attempt", attempt).Dur("delay", delay).Msg("connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-c.base.After(delay):
		}
	}
}

// backoff returns ReconnectDelay x attempt, capped at MaxReconnectDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.ReconnectDelay * time.Duration(attempt)
	if d > c.cfg.MaxReconnectDelay {
		d = c.cfg.MaxReconnectDelay
	}
	return d
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return false, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer func() { _ = conn.Close() }()
	log.Info().Str("client_id", c.ID).Str("event_id", c.cfg.EventID).Msg("connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := c.send(conn, protocol.RequestJoinEvent, nil); err != nil {
		return true, err
	}
	// One initialSync per connection; everything after it arrives as broadcasts.
	if err := c.send(conn, protocol.RequestInitialSync, nil); err != nil {
		return true, err
	}
	if c.cfg.Viewer != nil {
		if err := c.send(conn, protocol.RequestPresenceJoin, c.cfg.Viewer); err != nil {
			return true, err
		}
	}
	if c.cfg.Passive {
		go c.resyncLoop(conn, done)
	}

	return true, c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if reason := c.state.DisconnectReason(); reason != "" {
				return fmt.Errorf("%w: %s", ErrForceDisconnected, reason)
			}
			return fmt.Errorf("read: %w", err)
		}
		env, msg, err := protocol.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("ignoring undecodable frame")
			continue
		}
		if env.EventID != "" && env.EventID != c.cfg.EventID {
			continue
		}
		c.state.Apply(msg)
		if m, ok := msg.(protocol.Error); ok {
			log.Warn().Str("request_id", m.RequestID).Str("message", m.Message).Msg("server error")
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

func (c *Client) resyncLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := c.base.NewTicker(c.cfg.PassiveResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if err := c.send(conn, protocol.RequestScheduleSync, nil); err != nil {
				log.Debug().Err(err).Msg("passive resync failed")
				return
			}
		}
	}
}

func (c *Client) send(conn *websocket.Conn, t protocol.RequestType, data any) error {
	frame, err := protocol.NewRequest(t, c.cfg.EventID, uuid.New().String(), data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", c.cfg.URL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
