package websocket

import (
	"encoding/json"
	"time"

	"partshub/internal/domain/entity"
)

// WebSocket message types
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeUnreadUpdate = "unread_update"
	MessageTypeError        = "error"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewUnreadUpdate wraps an unread event for the wire.
func NewUnreadUpdate(event entity.UnreadEvent) ([]byte, error) {
	return newMessage(MessageTypeUnreadUpdate, event)
}

func newMessage(msgType string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// HandleClientMessage processes incoming frames. The unread channel is
// server-to-client; clients only ping.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var msg WSMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		m.log.Debug("invalid websocket frame", "userID", client.UserID, "error", err)
		m.sendToClient(client, MessageTypeError, map[string]string{"error": "Invalid message format"})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		m.sendToClient(client, MessageTypePong, map[string]string{"status": "alive"})
	default:
		m.sendToClient(client, MessageTypeError, map[string]string{"error": "Unknown message type"})
	}
}

func (m *Manager) sendToClient(client *Client, msgType string, data interface{}) {
	b, err := newMessage(msgType, data)
	if err != nil {
		m.log.Warn("failed to marshal websocket message", "error", err)
		return
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, live := m.clients[client.UserID][client]; !live {
		return
	}
	select {
	case client.Send <- b:
	default:
		m.log.Warn("client send buffer full", "userID", client.UserID)
	}
}

// DeliverUnread pushes an unread event to every connection of its user.
// It is the realtime bus forwarder callback.
func (m *Manager) DeliverUnread(event entity.UnreadEvent) {
	if event.UserID == "" {
		return
	}
	b, err := NewUnreadUpdate(event)
	if err != nil {
		m.log.Warn("failed to marshal unread update", "conversationID", event.ConversationID, "error", err)
		return
	}
	delivered := m.SendToUser(event.UserID, b)
	m.log.Debug("unread update delivered", "userID", event.UserID, "conversationID", event.ConversationID, "connections", delivered)
}
