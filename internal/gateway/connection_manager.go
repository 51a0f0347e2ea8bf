// Package gateway serves the WebSocket side of the room protocol.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/services/presence"
	"github.com/bbernstein/runofshow-go/internal/services/pubsub"
)

// SyncProvider answers pull requests from connected clients.
type SyncProvider interface {
	Snapshot(ctx context.Context, eventID string) (protocol.Snapshot, error)
	ScheduleState(ctx context.Context, eventID string) (protocol.ScheduleState, error)
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	PingInterval       time.Duration
	ServerTimeInterval time.Duration
	RequestTimeout     time.Duration
	MaxMessageSize     int64
	ReadBufferSize     int
	WriteBufferSize    int
	SendBufferSize     int
	CheckOrigin        func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:       10 * time.Second,
		ReadTimeout:        60 * time.Second,
		PingInterval:       30 * time.Second,
		ServerTimeInterval: 5 * time.Second,
		RequestTimeout:     5 * time.Second,
		MaxMessageSize:     4096,
		ReadBufferSize:     1024,
		WriteBufferSize:    1024,
		SendBufferSize:     256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Stats summarizes live connections.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveEvents     int            `json:"active_events"`
	EventConnections map[string]int `json:"event_connections"`
}

// ConnectionManager owns every WebSocket connection and its room subscriptions.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broker   *pubsub.PubSub
	sync     SyncProvider
	presence *presence.Registry
	clock    clock.Clock
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, broker *pubsub.PubSub, provider SyncProvider, presenceRegistry *presence.Registry, clk clock.Clock) *ConnectionManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		broker:   broker,
		sync:     provider,
		presence: presenceRegistry,
		clock:    clk,
	}
}

// Start emits ServerTime to every room until ctx is done, then closes all connections.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Dur("server_time_interval", cm.config.ServerTimeInterval).Msg("connection manager started")

	ticker := cm.clock.NewTicker(cm.config.ServerTimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case <-ticker.Chan():
			cm.broker.PublishAll(protocol.ServerTime{ServerTime: cm.clock.Now()})
		}
	}
}

// ServeHTTP upgrades the request. An optional eventId query parameter joins that room at once.
func (cm *ConnectionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := cm.UpgradeConnection(w, r); err != nil {
		return
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		ConnectedAt: cm.clock.Now(),
		manager:     cm,
		send:        make(chan []byte, cm.config.SendBufferSize),
		kick:        make(chan []byte, 1),
		done:        make(chan struct{}),
		rooms:       make(map[string]*pubsub.Subscriber),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	connection.sendMessage("", protocol.ServerTime{ServerTime: cm.clock.Now()})
	if eventID := r.URL.Query().Get("eventId"); eventID != "" {
		connection.join(eventID)
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return connection, nil
}

// DisconnectUser force-disconnects every connection through which userID views eventID.
func (cm *ConnectionManager) DisconnectUser(eventID, userID, reason string) int {
	ids := cm.presence.ConnectionsOf(eventID, userID)
	n := 0
	for _, id := range ids {
		cm.mu.RLock()
		conn, ok := cm.connections[id]
		cm.mu.RUnlock()
		if !ok {
			continue
		}
		frame, err := protocol.Encode(eventID, protocol.ForceDisconnect{Reason: reason}, cm.clock.Now())
		if err != nil {
			log.Error().Err(err).Msg("failed to encode forceDisconnect")
			continue
		}
		conn.kickWith(frame)
		n++
	}
	if n > 0 {
		log.Info().Str("event_id", eventID).Str("user_id", userID).Int("disconnected", n).Msg("user disconnected by admin")
	}
	return n
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	rooms := cm.broker.Rooms()
	counts := make(map[string]int, len(rooms))
	for _, id := range rooms {
		counts[id] = cm.broker.SubscriberCount(id)
	}
	return Stats{
		TotalConnections: total,
		ActiveEvents:     len(rooms),
		EventConnections: counts,
	}
}

// ConnectionIDs returns the IDs of all live connections.
func (cm *ConnectionManager) ConnectionIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, ok := cm.connections[conn.ID]
	delete(cm.connections, conn.ID)
	cm.mu.Unlock()

	if !ok {
		return
	}
	for eventID, viewers := range cm.presence.Disconnect(conn.ID) {
		cm.broker.Publish(eventID, protocol.PresenceUpdated{Viewers: viewers})
	}
	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
