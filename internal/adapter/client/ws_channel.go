package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"partshub/internal/domain/entity"
	ws "partshub/internal/infrastructure/websocket"
	"partshub/pkg/logger"
)

const (
	pingPeriod = 30 * time.Second
	readWait   = 75 * time.Second
	writeWait  = 10 * time.Second
)

// WebsocketChannel subscribes to the API's /ws unread stream.
type WebsocketChannel struct {
	url       string
	authToken string
	dialer    *websocket.Dialer
	log       *logger.Logger
}

func NewWebsocketChannel(rawURL, authToken string, log *logger.Logger) (*WebsocketChannel, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("websocket url: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WebsocketChannel{
		url:       rawURL,
		authToken: authToken,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log.With("component", "WebsocketChannel"),
	}, nil
}

// Subscribe dials once. The stream closes when the connection drops or ctx
// ends.
func (c *WebsocketChannel) Subscribe(ctx context.Context) (<-chan entity.UnreadEvent, error) {
	header := http.Header{}
	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}

	events := make(chan entity.UnreadEvent, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go c.keepAlive(conn, done)

	go func() {
		defer close(events)
		defer close(done)

		conn.SetReadDeadline(time.Now().Add(readWait))
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Debug("websocket read ended", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(readWait))

			var msg ws.WSMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.log.Warn("invalid websocket frame", "error", err)
				continue
			}
			if msg.Type != ws.MessageTypeUnreadUpdate {
				continue
			}
			var ev entity.UnreadEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.log.Warn("invalid unread update", "error", err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// keepAlive sends application pings so the server's read deadline and ours
// both keep moving.
func (c *WebsocketChannel) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	ping, _ := json.Marshal(ws.WSMessage{Type: ws.MessageTypePing})
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}
