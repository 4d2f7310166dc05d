package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ClientHandler receives browser traffic for a connection
type ClientHandler interface {
	HandleClientMessage(ctx context.Context, c *Connection, msg ClientMessage) error
	Disconnected(c *Connection)
}

// ConnectionManager manages WebSocket connections for puzzle sessions
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  ClientHandler
	clock    clockwork.Clock

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a browser
type Connection struct {
	ID        string
	PlayerID  string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time

	room *Room

	mu     sync.Mutex
	joined bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	SessionID string
	Message   *Message
	// Connection, if set, restricts delivery to one connection
	Connection *Connection
}

// Stats summarizes active connections
type Stats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager. Message
// and connection timestamps come from clock; socket deadlines use wall time.
func NewConnectionManager(config ConnectionConfig, handler ClientHandler, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		clock:       clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID string, room *Room) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		SessionID:   room.id,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
		room:        room,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("session_id", room.id).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and reports whether it was still
// registered.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return false
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")

	if cm.handler != nil {
		cm.handler.Disconnected(conn)
	}
	return true
}

// Count returns the number of open connections for a session
func (cm *ConnectionManager) Count(sessionID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessionConnections[sessionID])
}

// BroadcastToSession sends a message to all connections of a session
func (cm *ConnectionManager) BroadcastToSession(sessionID string, msg *Message) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Message: msg}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToAll sends a message to every connection of every session
func (cm *ConnectionManager) BroadcastToAll(msg *Message) {
	cm.mu.RLock()
	ids := make([]string, 0, len(cm.sessionConnections))
	for id := range cm.sessionConnections {
		ids = append(ids, id)
	}
	cm.mu.RUnlock()

	for _, id := range ids {
		m := *msg
		m.SessionID = id
		cm.BroadcastToSession(id, &m)
	}
}

// SendTo queues a message for a single connection
func (cm *ConnectionManager) SendTo(conn *Connection, msg *Message) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: conn.SessionID, Message: msg, Connection: conn}:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("broadcast channel full, dropping direct message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	var targetConnections []*Connection
	for conn := range connections {
		if message.Connection != nil && conn != message.Connection {
			continue
		}
		targetConnections = append(targetConnections, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	for _, conn := range targetConnections {
		cm.deliver(conn, data)
	}

	log.Debug().
		Str("message_type", string(message.Message.Type)).
		Str("session_id", message.SessionID).
		Int("connections", len(targetConnections)).
		Msg("message broadcasted")
}

// deliver queues data on a connection, closing it when its buffer is full.
// The send happens under the read lock so unregister cannot close the
// channel mid-send.
func (cm *ConnectionManager) deliver(conn *Connection, data []byte) {
	cm.mu.RLock()
	if !cm.sessionConnections[conn.SessionID][conn] {
		cm.mu.RUnlock()
		return
	}
	var full bool
	select {
	case conn.Send <- data:
	default:
		full = true
	}
	cm.mu.RUnlock()

	if full {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{SessionConnections: make(map[string]int, len(cm.sessionConnections))}
	for sessionID, connections := range cm.sessionConnections {
		stats.TotalConnections += len(connections)
		stats.SessionConnections[sessionID] = len(connections)
	}
	stats.ActiveSessions = len(cm.sessionConnections)
	return stats
}

// Joined reports whether the connection has registered a player
func (c *Connection) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *Connection) markJoined() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = true
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
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

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(data []byte) {
	msg, err := ParseClientMessage(data)
	if err == nil && c.Manager.handler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.WriteTimeout)
		err = c.Manager.handler.HandleClientMessage(ctx, c, msg)
		cancel()
	}
	if err == nil {
		return
	}

	log.Debug().
		Err(err).
		Str("connection_id", c.ID).
		Str("player_id", c.PlayerID).
		Msg("rejected client message")

	reply, mErr := newMessage(MessageError, c.SessionID, c.Manager.clock.Now(), ErrorPayload{Message: err.Error()})
	if mErr != nil {
		return
	}
	c.Manager.SendTo(c, reply)
}
