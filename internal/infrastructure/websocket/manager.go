package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"partshub/internal/metrics"
	"partshub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket connection. A user may hold several (tabs, devices).
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Manager tracks live connections per user and delivers unread events to them.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewManager(log *logger.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With("component", "WebsocketManager"),
		metrics:    m,
	}
}

// Start runs the manager's main loop in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				set, ok := m.clients[client.UserID]
				if !ok {
					set = make(map[*Client]struct{})
					m.clients[client.UserID] = set
				}
				set[client] = struct{}{}
				m.mutex.Unlock()
				m.metrics.ClientConnected()
				m.log.Debug("client registered", "userID", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)

			case <-ctx.Done():
				close(m.done)
				m.closeAll()
				return
			}
		}
	}()
}

// Add hands client to the manager loop. It returns false once the manager
// has stopped.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// Remove unregisters client; safe to call after the manager stopped.
func (m *Manager) Remove(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

// SendToUser queues message on every connection of userID. Slow connections
// whose buffer is full are dropped; they resync on reconnect. Sends happen
// under the read lock so a connection cannot be closed mid-send.
func (m *Manager) SendToUser(userID string, message []byte) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	delivered := 0
	for c := range m.clients[userID] {
		select {
		case c.Send <- message:
			delivered++
		default:
			m.log.Warn("dropping slow websocket client", "userID", userID)
			go m.Remove(c)
		}
	}
	return delivered
}

// Connections returns the number of live connections for userID.
func (m *Manager) Connections(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	set, ok := m.clients[client.UserID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	if _, ok := set[client]; !ok {
		m.mutex.Unlock()
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(m.clients, client.UserID)
	}
	close(client.Send)
	m.mutex.Unlock()
	m.metrics.ClientDisconnected()
	m.log.Debug("client unregistered", "userID", client.UserID)
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for userID, set := range m.clients {
		for c := range set {
			close(c.Send)
			m.metrics.ClientDisconnected()
		}
		delete(m.clients, userID)
	}
}

// ReadPump reads control frames and client messages until the connection drops.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Remove(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.Warn("websocket read error", "userID", c.UserID, "error", err)
			}
			return
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump sends queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
