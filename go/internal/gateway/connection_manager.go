package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// ErrBroadcastBufferFull is returned by Publish when the hub cannot keep up
var ErrBroadcastBufferFull = errors.New("broadcast channel full")

// ConnectionManager manages WebSocket connections and fans engine events out
// to them. It implements events.Publisher.
type ConnectionManager struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	onMessage MessageHandler
	// ctx is cancelled when the read side closes; in-flight commands see it.
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  chan struct{}

	ConnectedAt time.Time
}

// MessageHandler processes one client message and returns the reply, if any
type MessageHandler func(ctx context.Context, conn *Connection, msg ClientMessage) *ServerMessage

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	// MaxInflight caps concurrently running commands per connection
	MaxInflight     int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is one pre-encoded event queued for delivery
type BroadcastMessage struct {
	EventType     events.EventType
	Data          []byte
	ExcludeUserID string // if set, that user's connections are skipped
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		MaxInflight:     16,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = 1000
	}
	if config.MaxInflight <= 0 {
		config.MaxInflight = 16
	}
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes queued broadcasts until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Publish queues env for every connected client except env.ExcludeUserID.
// Events leave in the order they were published.
func (cm *ConnectionManager) Publish(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", env.Type, err)
	}

	select {
	case cm.broadcastCh <- BroadcastMessage{EventType: env.Type, Data: data, ExcludeUserID: env.ExcludeUserID}:
		return nil
	default:
		log.Warn().Str("event_type", string(env.Type)).Msg("broadcast channel full, dropping message")
		return ErrBroadcastBufferFull
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, onMessage MessageHandler) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		onMessage:   onMessage,
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(chan struct{}, cm.config.MaxInflight),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection unregistered")
	}
}

// sendTo delivers data to a single connection if it is still registered.
// Send is only closed under the write lock, so holding the read lock here
// keeps the channel open for the duration of the send.
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if _, exists := cm.connections[conn]; !exists {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for conn := range cm.connections {
		if message.ExcludeUserID != "" && conn.UserID == message.ExcludeUserID {
			continue
		}
		select {
		case conn.Send <- message.Data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.EventType)).
		Int("connections", delivered).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes the hub
type ConnectionStats struct {
	TotalConnections int `json:"total_connections"`
	UniqueUsers      int `json:"unique_users"`
	PendingEvents    int `json:"pending_events"`
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	users := make(map[string]struct{})
	for conn := range cm.connections {
		if conn.UserID != "" {
			users[conn.UserID] = struct{}{}
		}
	}
	return ConnectionStats{
		TotalConnections: len(cm.connections),
		UniqueUsers:      len(users),
		PendingEvents:    len(cm.broadcastCh),
	}
}

// writePump handles sending messages to the WebSocket connection
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
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
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
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.cancel()
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
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
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client command and replies on this connection only
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		c.reply(newErrorMessage("", "malformed message"))
		return
	}

	if c.onMessage == nil {
		return
	}

	// Commands run off the read loop so a bid waiting on a busy item does not
	// hold up later commands from the same client.
	select {
	case c.inflight <- struct{}{}:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("message_type", msg.Type).
			Msg("too many in-flight commands, rejecting")
		c.reply(newErrorMessage(msg.RequestID, "too many pending requests"))
		return
	}
	go func() {
		defer func() { <-c.inflight }()
		if reply := c.onMessage(c.ctx, c, msg); reply != nil {
			c.reply(reply)
		}
	}()
}

func (c *Connection) reply(msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}
	if !c.Manager.sendTo(c, data) {
		log.Warn().
			Str("connection_id", c.ID).
			Str("message_type", msg.Type).
			Msg("dropping reply for closed or slow connection")
	}
}
